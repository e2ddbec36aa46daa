package secret

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordVersionV1 = 1

var errCorruptRecord = errors.New("corrupt secret record")

func encodeRecord(s Secret) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + len(s.ID) + len(s.AccountID) + len(s.Purpose))

	buf.WriteByte(recordVersionV1)

	for _, field := range []string{s.ID, s.AccountID, string(s.Purpose)} {
		if len(field) > 65535 {
			return nil, errors.New("secret record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	buf.Write(s.ValueHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (Secret, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Secret{}, errCorruptRecord
	}
	if version != recordVersionV1 {
		return Secret{}, errors.New("invalid secret record version")
	}

	var fields [3]string
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return Secret{}, errCorruptRecord
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return Secret{}, errCorruptRecord
		}
		fields[i] = string(raw)
	}

	s := Secret{
		ID:        fields[0],
		AccountID: fields[1],
		Purpose:   Purpose(fields[2]),
	}

	if _, err := io.ReadFull(reader, s.ValueHash[:]); err != nil {
		return Secret{}, errCorruptRecord
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return Secret{}, errCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return Secret{}, errCorruptRecord
	}
	if reader.Len() != 0 {
		return Secret{}, errCorruptRecord
	}

	s.CreatedAt = time.Unix(0, created).UTC()
	s.ExpiresAt = time.Unix(0, expires).UTC()

	return s, nil
}
