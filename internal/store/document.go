// Package store persists the whole game state as a single document: every
// guild's statistics plus every active session. The document is the only
// unit of durability; each save rewrites it in full from the authoritative
// in-memory copy.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/countclash/countclash-server-go/internal/counting"
	"github.com/countclash/countclash-server-go/internal/stats"
)

// activeGamesKey is the reserved top-level key holding sessions; every other
// top-level key is a guild id. Guild ids are numeric snowflakes, so the two
// cannot collide.
const activeGamesKey = "active_games"

// Document is the persistent state: a stats ledger plus the active sessions
// keyed by channel id.
type Document struct {
	Stats *stats.Ledger
	Games map[string]*counting.Session

	gameOrder []string
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{
		Stats: stats.NewLedger(),
		Games: make(map[string]*counting.Session),
	}
}

// PutGame registers a session under its channel id.
func (d *Document) PutGame(channelID string, sess *counting.Session) {
	if _, exists := d.Games[channelID]; !exists {
		d.gameOrder = append(d.gameOrder, channelID)
	}
	d.Games[channelID] = sess
}

// RemoveGame deletes the session for the channel.
func (d *Document) RemoveGame(channelID string) {
	if _, exists := d.Games[channelID]; !exists {
		return
	}
	delete(d.Games, channelID)
	for i, id := range d.gameOrder {
		if id == channelID {
			d.gameOrder = append(d.gameOrder[:i], d.gameOrder[i+1:]...)
			break
		}
	}
}

// GameChannels returns the channel ids of all active sessions in insertion
// order.
func (d *Document) GameChannels() []string {
	out := make([]string, len(d.gameOrder))
	copy(out, d.gameOrder)
	return out
}

// MarshalJSON writes the document in the on-disk shape: guild ids as
// top-level keys, sessions under "active_games".
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, entry := range d.Stats.Guilds() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.GuildID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(entry.Stats)
		if err != nil {
			return nil, fmt.Errorf("marshal guild %s: %w", entry.GuildID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	if len(d.Stats.Guilds()) > 0 {
		buf.WriteByte(',')
	}
	buf.WriteString(strconv.Quote(activeGamesKey))
	buf.WriteByte(':')
	buf.WriteByte('{')
	for i, channelID := range d.gameOrder {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(channelID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(d.Games[channelID])
		if err != nil {
			return nil, fmt.Errorf("marshal session %s: %w", channelID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteString("}}")

	return buf.Bytes(), nil
}

// UnmarshalJSON reads the on-disk shape, preserving guild and session key
// order.
func (d *Document) UnmarshalJSON(data []byte) error {
	d.Games = make(map[string]*counting.Session)
	d.gameOrder = nil

	var guilds []stats.GuildEntry

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected document object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}

		if key == activeGamesKey {
			if err := d.decodeGames(dec); err != nil {
				return err
			}
			continue
		}

		gs := stats.NewGuildStats()
		if err := dec.Decode(gs); err != nil {
			return fmt.Errorf("decode guild %s: %w", key, err)
		}
		guilds = append(guilds, stats.GuildEntry{GuildID: key, Stats: gs})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	d.Stats = stats.NewLedgerFrom(guilds)
	return nil
}

func (d *Document) decodeGames(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected active_games object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		channelID, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected channel id key, got %v", keyTok)
		}
		var sess counting.Session
		if err := dec.Decode(&sess); err != nil {
			return fmt.Errorf("decode session %s: %w", channelID, err)
		}
		d.Games[channelID] = &sess
		d.gameOrder = append(d.gameOrder, channelID)
	}
	_, err = dec.Token()
	return err
}
