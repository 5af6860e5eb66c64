package redisclient

import (
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/ev3uart/sensor-engine/pkg/catalog"
)

// catalogEntry is the CBOR wire shape for a single published mode,
// deliberately smaller than catalog.ModeInfo: only the fields a
// downstream reader needs to interpret a sample.
type catalogEntry struct {
	Name     string  `cbor:"name"`
	Format   uint8   `cbor:"format"`
	Figures  int     `cbor:"figures"`
	Decimals int     `cbor:"decimals"`
	RawMin   float32 `cbor:"raw_min"`
	RawMax   float32 `cbor:"raw_max"`
	PctMin   float32 `cbor:"pct_min"`
	PctMax   float32 `cbor:"pct_max"`
	SIMin    float32 `cbor:"si_min"`
	SIMax    float32 `cbor:"si_max"`
	Units    string  `cbor:"units"`
}

type catalogSnapshot struct {
	NumModes     int            `cbor:"num_modes"`
	NumViewModes int            `cbor:"num_view_modes"`
	Modes        []catalogEntry `cbor:"modes"`
}

// Adapter is the concrete publisher.Publisher backed by Redis: a hash
// named by keyPrefix holds the current sensor type, catalog snapshot,
// current mode, and latest sample; every write is paired with a
// Publish on a channel of the same name, mirroring the teacher's
// WriteAndPublishInt/WriteAndPublishString pattern.
type Adapter struct {
	client    *Client
	keyPrefix string
}

// NewAdapter returns an Adapter that writes to the hash/channel named
// keyPrefix (e.g. "ev3:port1").
func NewAdapter(client *Client, keyPrefix string) *Adapter {
	return &Adapter{client: client, keyPrefix: keyPrefix}
}

// Attach implements publisher.Publisher.
func (a *Adapter) Attach(sensorType uint8) {
	if err := a.client.WriteAndPublishInt(a.keyPrefix, "sensor-type", int(sensorType)); err != nil {
		log.Printf("redisclient: failed to publish sensor-type: %v", err)
	}
}

// Detach implements publisher.Publisher.
func (a *Adapter) Detach() {
	for _, field := range []string{"sensor-type", "catalog", "mode", "sample"} {
		if err := a.client.HDel(a.keyPrefix, field); err != nil {
			log.Printf("redisclient: failed to clear field %s on detach: %v", field, err)
		}
	}
	if err := a.client.WriteAndPublishString(a.keyPrefix, "status", "detached"); err != nil {
		log.Printf("redisclient: failed to publish detach status: %v", err)
	}
}

// CatalogReady implements publisher.Publisher.
func (a *Adapter) CatalogReady(modes []catalog.ModeInfo, numModes, numViewModes int) {
	snapshot := catalogSnapshot{
		NumModes:     numModes,
		NumViewModes: numViewModes,
		Modes:        make([]catalogEntry, len(modes)),
	}
	for i, m := range modes {
		snapshot.Modes[i] = catalogEntry{
			Name:     m.Name,
			Format:   uint8(m.Format),
			Figures:  m.Figures,
			Decimals: m.Decimals,
			RawMin:   m.RawMin,
			RawMax:   m.RawMax,
			PctMin:   m.PctMin,
			PctMax:   m.PctMax,
			SIMin:    m.SIMin,
			SIMax:    m.SIMax,
			Units:    m.Units,
		}
	}

	encoded, err := cbor.Marshal(snapshot)
	if err != nil {
		log.Printf("redisclient: failed to encode catalog snapshot: %v", err)
		return
	}
	log.Printf("redisclient: publishing catalog for %s: %s", a.keyPrefix, hex.EncodeToString(encoded))
	if err := a.client.WriteAndPublishBytes(a.keyPrefix, "catalog", encoded); err != nil {
		log.Printf("redisclient: failed to publish catalog: %v", err)
	}
}

// ModeChanged implements publisher.Publisher.
func (a *Adapter) ModeChanged(mode uint8) {
	if err := a.client.WriteAndPublishInt(a.keyPrefix, "mode", int(mode)); err != nil {
		log.Printf("redisclient: failed to publish mode change: %v", err)
	}
}

// SampleAvailable implements publisher.Publisher.
func (a *Adapter) SampleAvailable(mode uint8, raw []byte) {
	payload, err := cbor.Marshal(struct {
		Mode uint8  `cbor:"mode"`
		Raw  []byte `cbor:"raw"`
	}{Mode: mode, Raw: raw})
	if err != nil {
		log.Printf("redisclient: failed to encode sample: %v", err)
		return
	}
	if err := a.client.WriteAndPublishBytes(a.keyPrefix, "sample", payload); err != nil {
		log.Printf("redisclient: failed to publish sample: %v", err)
	}
}

// Diagnostic implements publisher.Publisher.
func (a *Adapter) Diagnostic(lastError string) {
	if err := a.client.WriteAndPublishString(a.keyPrefix, "last-error", lastError); err != nil {
		log.Printf("redisclient: failed to publish diagnostic: %v", err)
	}
}

// SessionControl is the subset of pkg/session.Session the command
// watcher drives. Defined here, rather than imported from pkg/session,
// so this package has no dependency edge back onto the engine.
type SessionControl interface {
	SetMode(mode uint8) error
	Write(payload []byte) error
}

// CommandWatcher drains mode-select and write requests from a Redis
// list and applies them to a session, mirroring the teacher's
// WatchRedisCommands BRPop loop.
type CommandWatcher struct {
	client  *Client
	listKey string
	session SessionControl
	stop    chan struct{}
	done    chan struct{}
}

// NewCommandWatcher returns a watcher that pops commands off listKey
// and drives session. Call Run to start it and Stop to end it.
func NewCommandWatcher(client *Client, listKey string, session SessionControl) *CommandWatcher {
	return &CommandWatcher{
		client:  client,
		listKey: listKey,
		session: session,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run blocks, draining commands until Stop is called. Commands are
// CBOR-encoded {"op":"mode","mode":N} or {"op":"write","mode":N,"data":[...]}.
func (w *CommandWatcher) Run() {
	defer close(w.done)
	log.Printf("redisclient: command watcher starting on list %s", w.listKey)
	for {
		select {
		case <-w.stop:
			log.Println("redisclient: command watcher stopping")
			return
		default:
		}

		result, err := w.client.BRPop(5*time.Second, w.listKey)
		if err != nil {
			log.Printf("redisclient: command watcher brpop error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if result == nil {
			continue
		}

		if err := w.apply(result[1]); err != nil {
			log.Printf("redisclient: command watcher: %v", err)
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (w *CommandWatcher) Stop() {
	close(w.stop)
	<-w.done
}

type sessionCommand struct {
	Op   string `cbor:"op"`
	Mode uint8  `cbor:"mode"`
	Data []byte `cbor:"data"`
}

func (w *CommandWatcher) apply(encoded string) error {
	var cmd sessionCommand
	if err := cbor.Unmarshal([]byte(encoded), &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Op {
	case "mode":
		return w.session.SetMode(cmd.Mode)
	case "write":
		return w.session.Write(cmd.Data)
	default:
		return fmt.Errorf("unknown command op %q", cmd.Op)
	}
}
