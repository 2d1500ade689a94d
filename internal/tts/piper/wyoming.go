package piper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Wyoming protocol format (per event):
//
//	{"type": "...", "version": "...", "data_length": N, "payload_length": M}\n
//	<data_bytes>      (N bytes of JSON, if data_length > 0)
//	<payload_bytes>   (M bytes, if payload_length > 0)
//
// Older peers put "data" inline in the header line; both forms are read.

const wyomingVersion = "1.5.2"

// maxEventData bounds a single event's data; info events listing many voices stay well below it.
const maxEventData = 8 << 20

// maxEventPayload bounds a single audio chunk.
const maxEventPayload = 16 << 20

type wyomingEvent struct {
	Type string
	Data map[string]any
}

type wyomingHeader struct {
	Type          string         `json:"type"`
	Version       string         `json:"version,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// writeEvent sends a Wyoming event over the connection.
func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling event data: %w", err)
		}
	}

	header, err := json.Marshal(wyomingHeader{
		Type:          evt.Type,
		Version:       wyomingVersion,
		DataLength:    len(data),
		PayloadLength: len(payload),
	})
	if err != nil {
		return fmt.Errorf("marshalling event header: %w", err)
	}

	buf := make([]byte, 0, len(header)+1+len(data)+len(payload))
	buf = append(buf, header...)
	buf = append(buf, '\n')
	buf = append(buf, data...)
	buf = append(buf, payload...)
	_, err = w.Write(buf)
	return err
}

// readEvent reads a Wyoming event from the connection.
func readEvent(r *bufio.Reader) (*wyomingEvent, []byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var hdr wyomingHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, nil, fmt.Errorf("invalid wyoming header %q: %w", line, err)
	}
	if hdr.Type == "" {
		return nil, nil, fmt.Errorf("wyoming header without type: %q", line)
	}
	if hdr.DataLength < 0 || hdr.DataLength > maxEventData ||
		hdr.PayloadLength < 0 || hdr.PayloadLength > maxEventPayload {
		return nil, nil, fmt.Errorf("invalid wyoming lengths: data=%d payload=%d", hdr.DataLength, hdr.PayloadLength)
	}

	evt := &wyomingEvent{Type: hdr.Type, Data: hdr.Data}
	if evt.Data == nil {
		evt.Data = make(map[string]any)
	}

	if hdr.DataLength > 0 {
		dataBuf := make([]byte, hdr.DataLength)
		if _, err := io.ReadFull(r, dataBuf); err != nil {
			return nil, nil, fmt.Errorf("reading data: %w", err)
		}
		var extra map[string]any
		if err := json.Unmarshal(dataBuf, &extra); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling event data: %w", err)
		}
		for k, v := range extra {
			evt.Data[k] = v
		}
	}

	var payload []byte
	if hdr.PayloadLength > 0 {
		payload = make([]byte, hdr.PayloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}

	return evt, payload, nil
}

// intField reads a numeric field from decoded event data.
func intField(data map[string]any, key string, def int) int {
	if v, ok := data[key].(float64); ok {
		return int(v)
	}
	return def
}
