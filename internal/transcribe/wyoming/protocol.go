package wyoming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// protocolVersion is sent in every event header.
const protocolVersion = "1.5.2"

// maxSection bounds data and payload sections read from a peer.
const maxSection = 16 << 20

// event is one Wyoming protocol message.
//
// On the wire (per event):
//
//	{"type": ..., "version": ..., "data_length": N, "payload_length": M}\n
//	<N bytes of JSON data>
//	<M bytes of payload>
type event struct {
	Type    string
	Data    map[string]any
	Payload []byte
}

type header struct {
	Type          string         `json:"type"`
	Version       string         `json:"version,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// writeEvent sends one event.
func writeEvent(w io.Writer, evt event) error {
	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling %s data: %w", evt.Type, err)
		}
	}
	h, err := json.Marshal(header{
		Type:          evt.Type,
		Version:       protocolVersion,
		DataLength:    len(data),
		PayloadLength: len(evt.Payload),
	})
	if err != nil {
		return fmt.Errorf("marshalling %s header: %w", evt.Type, err)
	}

	buf := make([]byte, 0, len(h)+1+len(data)+len(evt.Payload))
	buf = append(buf, h...)
	buf = append(buf, '\n')
	buf = append(buf, data...)
	buf = append(buf, evt.Payload...)
	_, err = w.Write(buf)
	return err
}

// readEvent reads one event. Data sent inline in the header and data sent
// in a separate section are merged.
func readEvent(r *bufio.Reader) (event, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return event{}, fmt.Errorf("reading header: %w", err)
	}
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return event{}, fmt.Errorf("invalid wyoming header %q: %w", line, err)
	}
	if h.DataLength < 0 || h.DataLength > maxSection || h.PayloadLength < 0 || h.PayloadLength > maxSection {
		return event{}, fmt.Errorf("wyoming %s: section too large", h.Type)
	}

	evt := event{Type: h.Type, Data: h.Data}
	if h.DataLength > 0 {
		raw := make([]byte, h.DataLength)
		if _, err := io.ReadFull(r, raw); err != nil {
			return event{}, fmt.Errorf("reading %s data: %w", h.Type, err)
		}
		var extra map[string]any
		if err := json.Unmarshal(raw, &extra); err != nil {
			return event{}, fmt.Errorf("unmarshalling %s data: %w", h.Type, err)
		}
		if evt.Data == nil {
			evt.Data = extra
		} else {
			for k, v := range extra {
				evt.Data[k] = v
			}
		}
	}
	if h.PayloadLength > 0 {
		evt.Payload = make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r, evt.Payload); err != nil {
			return event{}, fmt.Errorf("reading %s payload: %w", h.Type, err)
		}
	}
	return evt, nil
}
