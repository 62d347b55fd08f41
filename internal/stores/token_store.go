package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/userauth/internal"
)

// Kind selects the token namespace.
type Kind uint8

const (
	KindVerification Kind = iota + 1
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindVerification:
		return "verify"
	case KindReset:
		return "reset"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k == KindVerification || k == KindReset
}

const tokenRecordVersionV1 = 1

var (
	ErrTokenNotFoundOrExpired = errors.New("token not found or expired")
	ErrUnknownKind            = errors.New("unknown token kind")
	ErrStoreClosed            = errors.New("token store closed")
)

// TokenStore issues and redeems ephemeral tokens.
type TokenStore interface {
	Issue(ctx context.Context, kind Kind, email string, ttl time.Duration, now time.Time) (string, error)
	// Peek returns the email bound to token without consuming it.
	Peek(ctx context.Context, kind Kind, token string, now time.Time) (string, error)
	// Consume returns the email bound to token and removes the token.
	Consume(ctx context.Context, kind Kind, token string, now time.Time) (string, error)
	// Invalidate removes token if present. Idempotent.
	Invalidate(ctx context.Context, kind Kind, token string) error
}

type tokenRecord struct {
	Email     string
	ExpiresAt int64 // unix nanoseconds
}

func (r tokenRecord) expired(now time.Time) bool {
	return now.UnixNano() >= r.ExpiresAt
}

func newTokenRecord(email string, ttl time.Duration, now time.Time) (string, tokenRecord, error) {
	if ttl <= 0 {
		return "", tokenRecord{}, errors.New("token ttl must be > 0")
	}
	if email == "" {
		return "", tokenRecord{}, errors.New("token email required")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", tokenRecord{}, err
	}
	return id.String(), tokenRecord{Email: email, ExpiresAt: now.Add(ttl).UnixNano()}, nil
}

func tokenKey(token string) string {
	return internal.HashToken(token)
}

func encodeTokenRecord(record tokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if len(record.Email) > 65535 {
		return nil, errors.New("token record email too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (tokenRecord, error) {
	var record tokenRecord
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return record, err
	}
	if version != tokenRecordVersionV1 {
		return record, errors.New("invalid token record version")
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return record, err
	}

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return record, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return record, err
	}
	record.Email = string(email)

	return record, nil
}
