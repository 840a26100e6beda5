package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	persistlog "livestock.tv/internal/persistence/log"
	"livestock.tv/internal/persistence/r2s3"
)

// buildMirror returns nil unless LIVESTOCK_R2_MIRROR is set. Sealed event
// segments are then uploaded under <prefix>/events/.
func buildMirror(dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("LIVESTOCK_R2_MIRROR", false) {
		return nil, nil
	}
	cfg := r2s3.Config{
		Endpoint:        strings.TrimSpace(os.Getenv("LIVESTOCK_R2_ENDPOINT")),
		Bucket:          strings.TrimSpace(os.Getenv("LIVESTOCK_R2_BUCKET")),
		Region:          strings.TrimSpace(os.Getenv("LIVESTOCK_R2_REGION")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("LIVESTOCK_R2_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("LIVESTOCK_R2_SECRET_ACCESS_KEY")),
	}
	client, err := r2s3.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("LIVESTOCK_R2_MIRROR=true: %w", err)
	}
	return r2s3.NewMirror(client, r2s3.MirrorOptions{
		DataDir: dataDir,
		Prefix:  os.Getenv("LIVESTOCK_R2_PREFIX"),
		Workers: envInt("LIVESTOCK_R2_UPLOAD_WORKERS", 2),
	}, logger), nil
}

// mirrorLogOptions cuts event files per minute so a crash loses at most one
// minute of uploaded history.
func mirrorLogOptions(m *r2s3.Mirror) persistlog.LoggerOptions {
	if m == nil {
		return persistlog.LoggerOptions{}
	}
	return persistlog.LoggerOptions{
		RotateLayout: "2006-01-02-15-04",
		OnClose:      m.Enqueue,
	}
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
