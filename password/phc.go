package password

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// phcHash is a decoded $argon2id$ string.
type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// String encodes h with unpadded base64, as the reference implementation and
// libsodium do.
func (h phcHash) String() string {
	var b strings.Builder
	b.Grow(64 + 2*len(h.key))
	b.WriteString("$" + algorithmID)
	b.WriteString("$v=" + strconv.Itoa(argon2.Version))
	b.WriteString("$m=" + strconv.FormatUint(uint64(h.memory), 10))
	b.WriteString(",t=" + strconv.FormatUint(uint64(h.time), 10))
	b.WriteString(",p=" + strconv.FormatUint(uint64(h.parallelism), 10))
	b.WriteString("$" + base64.RawStdEncoding.EncodeToString(h.salt))
	b.WriteString("$" + base64.RawStdEncoding.EncodeToString(h.key))
	return b.String()
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedHash}, args...)...)
}

// parsePHC decodes an $argon2id$ string. Other algorithms yield
// ErrUnsupportedHash; structural problems yield ErrMalformedHash.
func parsePHC(encoded string) (phcHash, error) {
	var h phcHash

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return h, ErrUnsupportedHash
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return h, malformed("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return h, malformed("version %q", version)
	}

	if err := h.parseParams(parts[3]); err != nil {
		return h, err
	}

	var err error
	if h.salt, err = decodeB64(parts[4]); err != nil || len(h.salt) < int(minSaltLength) {
		return h, malformed("salt")
	}
	if h.key, err = decodeB64(parts[5]); err != nil || len(h.key) == 0 {
		return h, malformed("key")
	}
	return h, nil
}

func (h *phcHash) parseParams(s string) error {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return malformed("parameters %q", s)
	}

	seen := map[string]bool{}
	for _, field := range fields {
		name, raw, ok := strings.Cut(field, "=")
		if !ok || seen[name] {
			return malformed("parameter %q", field)
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return malformed("memory %q", raw)
			}
			h.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return malformed("time %q", raw)
			}
			h.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return malformed("parallelism %q", raw)
			}
			h.parallelism = uint8(v)
		default:
			return malformed("parameter %q", name)
		}
	}
	return nil
}

// decodeB64 accepts unpadded and padded standard base64; older hashes were
// written padded.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
