package cli

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/fmueller/dictado/internal/config"
	"github.com/fmueller/dictado/internal/platform"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// readIdentity returns the device identity saved under dataDir, minting it
// on first use.
func readIdentity(t *testing.T, dataDir string) string {
	t.Helper()

	settings, err := config.LoadSettings(platform.PathsFor(dataDir).Settings)
	require.NoError(t, err)
	return settings.Identity
}

// monoWAV encodes 16 kHz mono PCM16 samples as a WAV file.
func monoWAV(samples []int16) []byte {
	const rate = 16000
	dataSize := uint32(2 * len(samples))

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVEfmt ")
	for _, field := range []any{uint32(16), uint16(1), uint16(1), uint32(rate), uint32(2 * rate), uint16(2), uint16(16)} {
		_ = binary.Write(&buf, binary.LittleEndian, field)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
