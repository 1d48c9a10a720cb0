package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDeriveSizes(t *testing.T) {
	s := DeriveSizes(128)
	if s.MaxFrame != 124 {
		t.Errorf("expected MaxFrame=124, got %d", s.MaxFrame)
	}
	if s.MaxRouterData != 96 {
		t.Errorf("expected MaxRouterData=96, got %d", s.MaxRouterData)
	}
	if s.MaxFramePayload != 90 {
		t.Errorf("expected MaxFramePayload=90, got %d", s.MaxFramePayload)
	}
	if s.MaxStream != 90*65536 {
		t.Errorf("expected MaxStream=%d, got %d", 90*65536, s.MaxStream)
	}
	if !s.Valid() {
		t.Error("sizes for MTU 128 should be valid")
	}
}

func TestDeriveSizesTooSmall(t *testing.T) {
	if DeriveSizes(38).Valid() {
		t.Error("MTU 38 leaves no frame payload and should be invalid")
	}
	if !DeriveSizes(39).Valid() {
		t.Error("MTU 39 leaves one byte of frame payload and should be valid")
	}
	if DeriveSizes(512).Valid() {
		t.Error("MTU 512 overflows the 1-byte length field and should be invalid")
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		input   string
		want    Address
		wantErr bool
	}{
		{"13800138000", 13800138000, false},
		{"0", 0, false},
		{"broadcast", Broadcast, false},
		{"1099511627775", MaxAddress, false},
		{"1099511627776", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) should fail", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %d, expected %d", tt.input, got, tt.want)
			}
		})
	}

	if Broadcast.String() != "broadcast" {
		t.Errorf("expected broadcast, got %s", Broadcast.String())
	}
	if Address(42).String() != "42" {
		t.Errorf("expected 42, got %s", Address(42).String())
	}
}

func TestNewPacketIDUnique(t *testing.T) {
	seen := make(map[PacketID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewPacketID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate packet id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	sentinels := []error{
		ErrFrameTooLarge,
		ErrPayloadTooLarge,
		ErrMalformed,
		ErrReassemblyTimeout,
		ErrStackClosed,
		ErrConfigInvalid,
	}
	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("layer: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("errors.Is failed for wrapped %v", sentinel)
		}
	}
}
