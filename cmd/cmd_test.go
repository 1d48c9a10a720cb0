package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/wire"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, pidFile = "", "/var/run/floodstack.pid"
	validatePrint, decodeLayersOnly = false, false

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func samplePacket(t *testing.T) []byte {
	t.Helper()
	frame, err := wire.EncodeFrame(wire.StreamFrame{StreamID: 0x1234, Count: 1}, []byte("ping"))
	require.NoError(t, err)
	packet, err := wire.EncodeFlood(wire.FloodPacket{
		ID:     core.NewPacketID(),
		Type:   wire.FloodTypeBroadcast,
		Source: 1,
		Sender: 1,
	}, frame)
	require.NoError(t, err)
	data, err := wire.EncodeTransport(packet)
	require.NoError(t, err)
	return data
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
floodstack:
  node:
    address: "42"
  link:
    type: udp
    udp:
      listen: 127.0.0.1:7700
`), 0644))

	out, err := execute(t, "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "VALID: node 42 on udp link, mtu 128, frame payload 90, max message 5898240, max hops 3")

	out, err = execute(t, "validate", "-c", path, "--print")
	require.NoError(t, err)
	yamlStart := bytes.IndexByte([]byte(out), '\n') + 1
	var printed map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out[yamlStart:]), &printed))
	assert.Equal(t, "42", printed["floodstack"]["node"].(map[string]any)["address"])
}

func TestValidate_WithoutAddress(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "no node.address set")
}

func TestValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
floodstack:
  node:
    address: "5"
    mtu: 8
`), 0644))

	_, err := execute(t, "validate", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestDecode(t *testing.T) {
	data := samplePacket(t)

	out, err := execute(t, "decode", "--layers", hex.EncodeToString(data))
	require.NoError(t, err)
	assert.Equal(t, "TransportPacket / FloodPacket / StreamFrame / Payload\n", out)

	out, err = execute(t, "decode", hex.EncodeToString(data[:10]), hex.EncodeToString(data[10:]))
	require.NoError(t, err)
	assert.Contains(t, out, "FloodPacket")
	assert.Contains(t, out, "StreamFrame")
}

func TestParseHex(t *testing.T) {
	data, err := parseHex([]string{"0x41:54", "2B 05"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x54, 0x2b, 0x05}, data)

	_, err = parseHex([]string{"zz"})
	assert.Error(t, err)
}

func TestDecode_Truncated(t *testing.T) {
	data := samplePacket(t)
	_, err := execute(t, "decode", "--layers", hex.EncodeToString(data[:8]))
	assert.Error(t, err)
}

func TestSignalCommands_NoPIDFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pid")
	_, err := execute(t, "stop", "-p", missing)
	assert.ErrorContains(t, err, "not running")
	_, err = execute(t, "reload", "-p", missing)
	assert.ErrorContains(t, err, "not running")
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pid")
	require.NoError(t, os.WriteFile(good, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644))
	pid, err := readPIDFile(good)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	bad := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(bad, []byte("not-a-pid"), 0644))
	_, err = readPIDFile(bad)
	assert.ErrorContains(t, err, "invalid PID file")
}

func TestSimulate_HopLimit(t *testing.T) {
	var out bytes.Buffer
	err := runSimulateCommand(context.Background(), &out, simulateOptions{
		Nodes:    5,
		MaxHops:  2,
		Message:  "over the hills",
		FrameGap: 20 * time.Millisecond,
		Wait:     5 * time.Second,
		LogLevel: "error",
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "node 1: sender")
	assert.Contains(t, text, "node 2: delivered\n")
	assert.Contains(t, text, "node 3: delivered\n")
	assert.Contains(t, text, "node 4: not delivered")
	assert.Contains(t, text, "node 5: not delivered")
	assert.Contains(t, text, "route 1 via 2 (2 hops)")
}

func TestSimulate_MultiFrame(t *testing.T) {
	var out bytes.Buffer
	err := runSimulateCommand(context.Background(), &out, simulateOptions{
		Nodes:    3,
		MaxHops:  3,
		Size:     400,
		FrameGap: 30 * time.Millisecond,
		Wait:     10 * time.Second,
		LogLevel: "error",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "message 400 bytes in 5 frame(s)")
	assert.Contains(t, out.String(), "node 3: delivered\n")
}

func TestSimulate_BadOptions(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runSimulateCommand(context.Background(), &out, simulateOptions{Nodes: 1, MaxHops: 3}))
	assert.Error(t, runSimulateCommand(context.Background(), &out, simulateOptions{Nodes: 3, MaxHops: 3, Loss: 1}))
}
