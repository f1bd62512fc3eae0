package repository

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"bank-ledger/internal/models"
)

var (
	ErrCorruptRecord  = errors.New("corrupt account record")
	ErrBufferTooSmall = errors.New("value does not fit its record field")
	ErrInvalidText    = errors.New("text field contains NUL")
)

// Record layout, little-endian:
//
//	id int64 | limit int64 | balance int64 | count int32 | oldest int32 | 10 x slot
//	slot: amount int64 | kind byte | description [40]byte | occurred_at [32]byte
const (
	DescriptionSize = 40
	TimestampSize   = 32

	headerSize = 8 + 8 + 8 + 4 + 4
	slotSize   = 8 + 1 + DescriptionSize + TimestampSize
	RecordSize = headerSize + models.HistoryCapacity*slotSize
)

var byteOrder = binary.LittleEndian

// EncodeAccount serializes account into exactly RecordSize bytes.
func EncodeAccount(account *models.Account) ([]byte, error) {
	buf := make([]byte, RecordSize)

	byteOrder.PutUint64(buf[0:8], uint64(account.ID))
	byteOrder.PutUint64(buf[8:16], uint64(account.Limit))
	byteOrder.PutUint64(buf[16:24], uint64(account.Balance))
	byteOrder.PutUint32(buf[24:28], uint32(account.TransactionCount))
	byteOrder.PutUint32(buf[28:32], uint32(account.OldestIndex))

	for i, tx := range account.History {
		slot := buf[headerSize+i*slotSize : headerSize+(i+1)*slotSize]

		byteOrder.PutUint64(slot[0:8], uint64(tx.Amount))
		slot[8] = tx.Kind
		if err := putText(slot[9:9+DescriptionSize], tx.Description); err != nil {
			return nil, fmt.Errorf("slot %d description: %w", i, err)
		}
		if err := putText(slot[9+DescriptionSize:], tx.OccurredAt); err != nil {
			return nil, fmt.Errorf("slot %d timestamp: %w", i, err)
		}
	}

	return buf, nil
}

// DecodeAccount parses a record produced by EncodeAccount.
func DecodeAccount(data []byte) (*models.Account, error) {
	if len(data) != RecordSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrCorruptRecord, len(data), RecordSize)
	}

	account := &models.Account{
		ID:               int64(byteOrder.Uint64(data[0:8])),
		Limit:            int64(byteOrder.Uint64(data[8:16])),
		Balance:          int64(byteOrder.Uint64(data[16:24])),
		TransactionCount: int32(byteOrder.Uint32(data[24:28])),
		OldestIndex:      int32(byteOrder.Uint32(data[28:32])),
	}

	if account.ID <= 0 || account.Limit < 0 {
		return nil, fmt.Errorf("%w: id %d limit %d", ErrCorruptRecord, account.ID, account.Limit)
	}
	if account.TransactionCount < 0 || account.TransactionCount > models.HistoryCapacity {
		return nil, fmt.Errorf("%w: transaction count %d", ErrCorruptRecord, account.TransactionCount)
	}
	if account.OldestIndex < 0 || account.OldestIndex >= models.HistoryCapacity {
		return nil, fmt.Errorf("%w: oldest index %d", ErrCorruptRecord, account.OldestIndex)
	}

	for i := range account.History {
		slot := data[headerSize+i*slotSize : headerSize+(i+1)*slotSize]

		description, err := getText(slot[9 : 9+DescriptionSize])
		if err != nil {
			return nil, fmt.Errorf("slot %d description: %w", i, err)
		}
		occurredAt, err := getText(slot[9+DescriptionSize:])
		if err != nil {
			return nil, fmt.Errorf("slot %d timestamp: %w", i, err)
		}

		account.History[i] = models.Transaction{
			Amount:      int64(byteOrder.Uint64(slot[0:8])),
			Kind:        slot[8],
			Description: description,
			OccurredAt:  occurredAt,
		}
	}

	return account, nil
}

// putText writes s NUL-padded into dst. A NUL inside s could not be read back.
func putText(dst []byte, s string) error {
	if len(s) > len(dst) {
		return fmt.Errorf("%w: %d bytes, room for %d", ErrBufferTooSmall, len(s), len(dst))
	}
	if strings.IndexByte(s, 0) >= 0 {
		return ErrInvalidText
	}

	n := copy(dst, s)
	clear(dst[n:])
	return nil
}

func getText(src []byte) (string, error) {
	end := bytes.IndexByte(src, 0)
	if end < 0 {
		return string(src), nil
	}
	for _, b := range src[end:] {
		if b != 0 {
			return "", fmt.Errorf("%w: garbage after terminator", ErrCorruptRecord)
		}
	}
	return string(src[:end]), nil
}
