package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sensorwatch/internal/model"
	"sensorwatch/internal/normalize"
)

// DecodeBatch decodes one frame: a JSON array of readings, or a single
// reading object. Any invalid reading rejects the whole frame.
func DecodeBatch(data []byte, receivedAt time.Time) ([]model.SensorReading, error) {
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil, errors.New("empty frame")
	}
	var list []normalize.ReadingFields
	switch trim[0] {
	case '[':
		if err := json.Unmarshal(trim, &list); err != nil {
			return nil, err
		}
	case '{':
		var one normalize.ReadingFields
		if err := json.Unmarshal(trim, &one); err != nil {
			return nil, err
		}
		list = append(list, one)
	default:
		return nil, fmt.Errorf("unexpected frame start %q", trim[0])
	}
	out := make([]model.SensorReading, 0, len(list))
	for _, fields := range list {
		r, err := normalize.Normalize(fields, receivedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeFrame(frame []byte, receivedAt time.Time) ([]model.SensorReading, error) {
	batch, err := DecodeBatch(frame, receivedAt)
	if err != nil {
		return nil, &FrameError{Frame: string(frame), Err: err}
	}
	return batch, nil
}
