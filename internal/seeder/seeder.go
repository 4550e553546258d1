// Package seeder generates synthetic change stream batches for local testing.
package seeder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	json "github.com/goccy/go-json"

	"github.com/telhawk-systems/ttl-archiver/internal/stream"
)

// Options controls batch generation.
type Options struct {
	// Count is the number of records per batch.
	Count int
	// TTLRatio is the fraction of records that are TTL expiries (0..1).
	TTLRatio float64
	// Seed makes generation reproducible. Zero seeds from the clock.
	Seed int64
	// Table is used to build the event source ARN.
	Table  string
	Region string
}

// DefaultOptions returns a small mixed batch configuration.
func DefaultOptions() Options {
	return Options{
		Count:    10,
		TTLRatio: 0.5,
		Table:    "ttl-table",
		Region:   "us-east-1",
	}
}

// Generator builds realistic records with gofakeit.
type Generator struct {
	opts  Options
	faker *gofakeit.Faker
	seq   int
}

// NewGenerator creates a generator.
func NewGenerator(opts Options) *Generator {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.Table == "" {
		opts.Table = "ttl-table"
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	return &Generator{opts: opts, faker: gofakeit.New(seed)}
}

// Batch returns one batch of Count records.
func (g *Generator) Batch() *stream.Event {
	event := &stream.Event{Records: make([]stream.ChangeRecord, 0, g.opts.Count)}
	for i := 0; i < g.opts.Count; i++ {
		if g.faker.Float64() < g.opts.TTLRatio {
			event.Records = append(event.Records, g.TTLExpiry())
			continue
		}
		switch g.faker.Number(0, 2) {
		case 0:
			event.Records = append(event.Records, g.Insert())
		case 1:
			event.Records = append(event.Records, g.Modify())
		default:
			event.Records = append(event.Records, g.UserDelete())
		}
	}
	return event
}

// TTLExpiry returns a REMOVE record performed by the storage engine's TTL process.
func (g *Generator) TTLExpiry() stream.ChangeRecord {
	item := g.item()
	rec := g.record(stream.EventRemove, item)
	rec.UserIdentity = &stream.ActorIdentity{PrincipalType: "Service", PrincipalID: "dynamodb.amazonaws.com"}
	rec.Change.OldImage = item
	rec.Change.StreamViewType = "OLD_IMAGE"
	return rec
}

// UserDelete returns a REMOVE record performed by an IAM user.
func (g *Generator) UserDelete() stream.ChangeRecord {
	item := g.item()
	rec := g.record(stream.EventRemove, item)
	rec.UserIdentity = &stream.ActorIdentity{PrincipalType: "IAMUser", PrincipalID: "AIDA" + strings.ToUpper(g.faker.LetterN(16))}
	rec.Change.OldImage = item
	rec.Change.StreamViewType = "OLD_IMAGE"
	return rec
}

// Insert returns an INSERT record.
func (g *Generator) Insert() stream.ChangeRecord {
	item := g.item()
	rec := g.record(stream.EventInsert, item)
	rec.Change.NewImage = item
	rec.Change.StreamViewType = "NEW_AND_OLD_IMAGES"
	return rec
}

// Modify returns a MODIFY record with both images.
func (g *Generator) Modify() stream.ChangeRecord {
	before := g.item()
	after := make(stream.Image, len(before))
	for k, v := range before {
		after[k] = v
	}
	after["email"] = tagged("S", g.faker.Email())

	rec := g.record(stream.EventModify, before)
	rec.Change.OldImage = before
	rec.Change.NewImage = after
	rec.Change.StreamViewType = "NEW_AND_OLD_IMAGES"
	return rec
}

func (g *Generator) record(name stream.EventName, item stream.Image) stream.ChangeRecord {
	g.seq++
	created := g.faker.DateRange(time.Now().Add(-24*time.Hour), time.Now())
	return stream.ChangeRecord{
		EventID:      strings.ReplaceAll(g.faker.UUID(), "-", ""),
		EventName:    name,
		EventVersion: "1.1",
		EventSource:  "aws:dynamodb",
		AWSRegion:    g.opts.Region,
		EventSourceARN: fmt.Sprintf("arn:aws:dynamodb:%s:123456789012:table/%s/stream/%s",
			g.opts.Region, g.opts.Table, created.UTC().Format("2006-01-02T15:04:05.000")),
		Change: stream.StreamData{
			ApproximateCreationDateTime: float64(created.Unix()),
			Keys:                        stream.Image{"id": item["id"]},
			SequenceNumber:              strconv.Itoa(100000000 + g.seq),
			SizeBytes:                   int64(64 + g.faker.Number(0, 512)),
		},
	}
}

// item builds a row image that exercises every attribute type.
func (g *Generator) item() stream.Image {
	expires := time.Now().Add(-time.Duration(g.faker.Number(1, 3600)) * time.Second)
	return stream.Image{
		"id":       tagged("S", g.faker.UUID()),
		"ttl":      tagged("N", strconv.FormatInt(expires.Unix(), 10)),
		"username": tagged("S", g.faker.Username()),
		"email":    tagged("S", g.faker.Email()),
		"active":   tagged("BOOL", g.faker.Bool()),
		"score":    tagged("N", strconv.FormatFloat(g.faker.Float64Range(0, 100), 'f', 2, 64)),
		"tags":     tagged("SS", []string{g.faker.Word(), g.faker.Word() + "-" + g.faker.Word()}),
		"logins":   tagged("NS", []string{strconv.Itoa(g.faker.Number(1, 50)), strconv.Itoa(g.faker.Number(51, 99))}),
		"avatar":   tagged("B", []byte(g.faker.LetterN(12))),
		"deleted":  tagged("NULL", true),
		"address": tagged("M", map[string]json.RawMessage{
			"city": tagged("S", g.faker.City()),
			"zip":  tagged("S", g.faker.Zip()),
			"ip":   tagged("S", g.faker.IPv4Address()),
		}),
		"history": tagged("L", []json.RawMessage{
			tagged("S", "created"),
			tagged("N", strconv.Itoa(g.faker.Number(1, 9))),
		}),
	}
}

func tagged(tag string, v any) json.RawMessage {
	data, err := json.Marshal(map[string]any{tag: v})
	if err != nil {
		panic(fmt.Sprintf("seeder: marshal %s value: %v", tag, err))
	}
	return data
}
