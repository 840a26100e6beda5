package arena

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"livestock.tv/internal/sim/physics"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes everything that decides future ticks: match identity,
// state, and every body the arena tracks.
func (a *Arena) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	h.Write([]byte(a.matchID))
	h.Write([]byte{byte(a.state)})
	h.Write([]byte(a.winner))

	for _, ag := range a.registry.Agents() {
		h.Write([]byte(ag.Name))
		h.Write([]byte{0})
		digestWriteF64(h, &tmp, ag.MaxSpeed)
		if tr, ok := a.phys.Transform(ag.Body); ok {
			digestWriteVec(h, &tmp, tr.Pos)
			digestWriteF64(h, &tmp, tr.Rot.W)
			digestWriteVec(h, &tmp, tr.Rot.V)
		}
		if v, ok := a.phys.LinearVelocity(ag.Body); ok {
			digestWriteVec(h, &tmp, v)
		}
	}
	for _, id := range a.Projectiles() {
		digestWriteU64(h, &tmp, uint64(id))
		if tr, ok := a.phys.Transform(id); ok {
			digestWriteVec(h, &tmp, tr.Pos)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteVec(h hashWriter, tmp *[8]byte, v mgl64.Vec3) {
	for _, c := range v {
		digestWriteF64(h, tmp, c)
	}
}

func sortBodyIDs(ids []physics.BodyID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
