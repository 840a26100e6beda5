package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrProtoVersion,
		ErrArenaBusy,
		ErrBadAction,
		ErrBadTransition,
		ErrConfigFrozen,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestNewError(t *testing.T) {
	m := NewError(ErrBadAction, "nope")
	if m.Type != TypeError || m.ProtocolVersion != Version || m.Code != ErrBadAction {
		t.Fatalf("unexpected error msg: %+v", m)
	}
}
