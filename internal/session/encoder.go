package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersionV1 = 1

// Fixed-offset layout so the rotation Lua script can address the refresh
// hash and timestamps without a full decode:
//
//	version(1) refreshHash(32) userID(8) expiresAt(8) lastSeenAt(8)
//	issuedAt(8) status(1) roleLen(1) role deviceLen(2) device
func encodeRecord(record *Record) ([]byte, error) {
	if len(record.Role) > 255 {
		return nil, errors.New("session record role too long")
	}
	if len(record.Device) > 65535 {
		return nil, errors.New("session record device too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersionV1)
	buf.Write(record.RefreshHash[:])

	for _, v := range []int64{record.UserID, record.ExpiresAt, record.LastSeenAt, record.IssuedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	buf.WriteByte(record.Status)
	buf.WriteByte(byte(len(record.Role)))
	buf.WriteString(record.Role)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Device))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Device)

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, ErrCorrupt
	}

	record := &Record{}
	if _, err := io.ReadFull(reader, record.RefreshHash[:]); err != nil {
		return nil, ErrCorrupt
	}
	for _, dst := range []*int64{&record.UserID, &record.ExpiresAt, &record.LastSeenAt, &record.IssuedAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, ErrCorrupt
		}
	}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	record.Status = status

	roleLen, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	role := make([]byte, roleLen)
	if _, err := io.ReadFull(reader, role); err != nil {
		return nil, ErrCorrupt
	}
	record.Role = string(role)

	var deviceLen uint16
	if err := binary.Read(reader, binary.BigEndian, &deviceLen); err != nil {
		return nil, ErrCorrupt
	}
	device := make([]byte, deviceLen)
	if _, err := io.ReadFull(reader, device); err != nil {
		return nil, ErrCorrupt
	}
	record.Device = string(device)

	return record, nil
}
