package starboard

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"starboard-bot/models"
)

type fakeTallies struct {
	mu      sync.Mutex
	amounts map[string]int
	err     error
}

func (f *fakeTallies) UpsertDelta(guildID, userID string, delta int) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.amounts == nil {
		f.amounts = make(map[string]int)
	}
	f.amounts[guildID+"/"+userID] += delta
	return nil
}

func (f *fakeTallies) amount(guildID, userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amounts[guildID+"/"+userID]
}

type fakeSettings struct {
	guilds   map[string]*models.GuildSetting
	channels map[string]*models.ChannelSetting
	blocked  map[string]bool
}

func (f *fakeSettings) GetGuildSetting(guildID string) (*models.GuildSetting, error) {
	return f.guilds[guildID], nil
}

func (f *fakeSettings) GetChannelSetting(channelID string) (*models.ChannelSetting, error) {
	return f.channels[channelID], nil
}

func (f *fakeSettings) IsBlocked(messageID string) (bool, error) {
	return f.blocked[messageID], nil
}

type fakeRecords struct {
	mu      sync.Mutex
	records map[string]*models.CrosspostRecord
}

func (f *fakeRecords) GetRecord(messageID string) (*models.CrosspostRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[messageID], nil
}

func (f *fakeRecords) CreateRecord(rec models.CrosspostRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[rec.MessageID]; exists {
		return errors.New("UNIQUE constraint failed: crosspost_records.message_id")
	}
	f.records[rec.MessageID] = &rec
	return nil
}

func (f *fakeRecords) UpdateCount(messageID string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[messageID]; ok {
		rec.Count = count
	}
	return nil
}

func (f *fakeRecords) record(messageID string) *models.CrosspostRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[messageID]
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeChat struct {
	messages map[string]*Message
	channels map[string]*Channel
	webhooks map[string]string
	joined   time.Time
}

func (f *fakeChat) FetchMessage(channelID, messageID string) (*Message, error) {
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("unknown message %s", messageID)
	}
	return msg, nil
}

func (f *fakeChat) FetchChannel(channelID string) (*Channel, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("unknown channel %s", channelID)
	}
	return ch, nil
}

func (f *fakeChat) WebhookAppID(webhookID string) (string, error) {
	appID, ok := f.webhooks[webhookID]
	if !ok {
		return "", fmt.Errorf("unknown webhook %s", webhookID)
	}
	return appID, nil
}

func (f *fakeChat) JoinedAt(guildID string) (time.Time, error) {
	return f.joined, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (f *fakePublisher) Publish(msg *Message, targetChannelID string) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	err := f.err
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return "", err
	}
	return "post-1", nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	svc      *Service
	tallies  *fakeTallies
	settings *fakeSettings
	records  *fakeRecords
	chat     *fakeChat
	pub      *fakePublisher
	counters *Counters
}

// newTestEnv builds a service around a configured guild "g1" whose
// starboard channel is "log1", with a public source channel "c1" holding
// message "m1" by author "a1".
func newTestEnv(threshold int) *testEnv {
	env := &testEnv{
		tallies: &fakeTallies{},
		settings: &fakeSettings{
			guilds: map[string]*models.GuildSetting{
				"g1": {GuildID: "g1", Amount: threshold, LogChannelID: "log1"},
			},
			channels: map[string]*models.ChannelSetting{},
			blocked:  map[string]bool{},
		},
		records: &fakeRecords{records: map[string]*models.CrosspostRecord{}},
		chat: &fakeChat{
			messages: map[string]*Message{
				"m1": {
					ID:         "m1",
					ChannelID:  "c1",
					GuildID:    "g1",
					AuthorID:   "a1",
					AuthorName: "alice",
					Content:    "hello",
					Timestamp:  time.Now(),
				},
			},
			channels: map[string]*Channel{
				"c1":   {ID: "c1", Text: true, Public: true},
				"log1": {ID: "log1", Text: true, Public: true},
			},
			webhooks: map[string]string{},
			joined:   time.Now().Add(-24 * time.Hour),
		},
		pub:      &fakePublisher{},
		counters: NewCounters(),
	}
	env.svc = NewService("bot1", "⭐", env.tallies, env.settings, env.records, env.chat, env.pub, env.counters)
	return env
}

func addEvent(count int) models.ReactionEvent {
	return models.ReactionEvent{
		Kind:      models.ReactionAdd,
		Emoji:     "⭐",
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: "m1",
		AuthorID:  "a1",
		ReactorID: "r1",
		Count:     count,
	}
}

func removeEvent() models.ReactionEvent {
	ev := addEvent(0)
	ev.Kind = models.ReactionRemove
	return ev
}

func TestBelowThresholdDoesNotPublish(t *testing.T) {
	env := newTestEnv(3)

	env.svc.HandleAdd(addEvent(1))
	env.svc.HandleAdd(addEvent(2))

	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
	if got := env.records.count(); got != 0 {
		t.Fatalf("expected no crosspost records, got %d", got)
	}
	if got := env.tallies.amount("g1", "r1"); got != 2 {
		t.Fatalf("expected tally 2, got %d", got)
	}
}

func TestThresholdCrossingPublishesOnce(t *testing.T) {
	env := newTestEnv(3)

	env.svc.HandleAdd(addEvent(1))
	env.svc.HandleAdd(addEvent(2))
	env.svc.HandleAdd(addEvent(3))

	if got := env.pub.callCount(); got != 1 {
		t.Fatalf("expected exactly one publish call, got %d", got)
	}
	rec := env.records.record("m1")
	if rec == nil {
		t.Fatal("expected a crosspost record")
	}
	if rec.Count != 3 {
		t.Fatalf("expected record count 3, got %d", rec.Count)
	}
	if rec.CrosspostID != "post-1" {
		t.Fatalf("expected crosspost ID post-1, got %s", rec.CrosspostID)
	}
	if rec.AuthorID != "a1" {
		t.Fatalf("expected record author a1, got %s", rec.AuthorID)
	}
}

func TestExistingRecordRefreshesCountOnly(t *testing.T) {
	env := newTestEnv(3)

	env.svc.HandleAdd(addEvent(3))
	if got := env.pub.callCount(); got != 1 {
		t.Fatalf("expected one publish call, got %d", got)
	}

	// A remove then a re-add lands the count back on the threshold; the
	// record's count refreshes without a second publish.
	env.svc.HandleRemove(removeEvent())
	env.svc.HandleAdd(addEvent(3))

	if got := env.pub.callCount(); got != 1 {
		t.Fatalf("expected still one publish call, got %d", got)
	}
	if got := env.records.record("m1").Count; got != 3 {
		t.Fatalf("expected refreshed count 3, got %d", got)
	}

	env.svc.HandleAdd(addEvent(5))
	if got := env.records.record("m1").Count; got != 5 {
		t.Fatalf("expected refreshed count 5, got %d", got)
	}
	if got := env.pub.callCount(); got != 1 {
		t.Fatalf("expected still one publish call, got %d", got)
	}
}

func TestBlockedMessageNeverPublishes(t *testing.T) {
	env := newTestEnv(3)
	env.settings.blocked["m1"] = true

	env.svc.HandleAdd(addEvent(5))

	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
	if got := env.records.count(); got != 0 {
		t.Fatalf("expected no crosspost records, got %d", got)
	}
	// The tally still counts; only the crosspost is vetoed.
	if got := env.tallies.amount("g1", "r1"); got != 1 {
		t.Fatalf("expected tally 1, got %d", got)
	}
}

func TestUnconfiguredGuildStopsAfterTally(t *testing.T) {
	env := newTestEnv(3)
	delete(env.settings.guilds, "g1")

	env.svc.HandleAdd(addEvent(5))

	if got := env.tallies.amount("g1", "r1"); got != 1 {
		t.Fatalf("expected tally 1, got %d", got)
	}
	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
}

func TestGuildWithoutLogChannelStopsAfterTally(t *testing.T) {
	env := newTestEnv(3)
	env.settings.guilds["g1"].LogChannelID = ""

	env.svc.HandleAdd(addEvent(5))

	if got := env.tallies.amount("g1", "r1"); got != 1 {
		t.Fatalf("expected tally 1, got %d", got)
	}
	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
}

func TestSelfStarDropped(t *testing.T) {
	env := newTestEnv(1)

	ev := addEvent(5)
	ev.ReactorID = "a1" // reactor is the author
	env.svc.HandleAdd(ev)

	if got := env.tallies.amount("g1", "a1"); got != 0 {
		t.Fatalf("expected tally untouched, got %d", got)
	}
	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}

	ev.Kind = models.ReactionRemove
	env.svc.HandleRemove(ev)
	if got := env.tallies.amount("g1", "a1"); got != 0 {
		t.Fatalf("expected tally untouched after self remove, got %d", got)
	}
}

func TestWrongEmojiDropped(t *testing.T) {
	env := newTestEnv(1)

	ev := addEvent(5)
	ev.Emoji = "🔥"
	env.svc.HandleAdd(ev)

	if got := env.tallies.amount("g1", "r1"); got != 0 {
		t.Fatalf("expected tally untouched, got %d", got)
	}
	if got := env.counters.Snapshot().Drops; got != 1 {
		t.Fatalf("expected one drop, got %d", got)
	}
}

func TestOwnWebhookLoopbackDropped(t *testing.T) {
	env := newTestEnv(1)
	env.chat.webhooks["wh1"] = "bot1" // the bot's own crosspost webhook

	ev := addEvent(5)
	ev.WebhookID = "wh1"
	env.svc.HandleAdd(ev)

	if got := env.tallies.amount("g1", "r1"); got != 0 {
		t.Fatalf("expected tally untouched, got %d", got)
	}
	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}

	ev.Kind = models.ReactionRemove
	env.svc.HandleRemove(ev)
	if got := env.tallies.amount("g1", "r1"); got != 0 {
		t.Fatalf("expected tally untouched after loopback remove, got %d", got)
	}
}

func TestForeignWebhookMessageCounts(t *testing.T) {
	env := newTestEnv(1)
	env.chat.webhooks["wh2"] = "other-app"

	ev := addEvent(1)
	ev.WebhookID = "wh2"
	env.svc.HandleAdd(ev)

	if got := env.tallies.amount("g1", "r1"); got != 1 {
		t.Fatalf("expected tally 1, got %d", got)
	}
	if got := env.pub.callCount(); got != 1 {
		t.Fatalf("expected one publish call, got %d", got)
	}
}

func TestMissingAuthorDroppedWithWarning(t *testing.T) {
	env := newTestEnv(1)

	ev := addEvent(5)
	ev.AuthorID = ""
	env.svc.HandleAdd(ev)

	if got := env.tallies.amount("g1", "r1"); got != 0 {
		t.Fatalf("expected tally untouched, got %d", got)
	}
	if got := env.counters.Snapshot().Drops; got != 1 {
		t.Fatalf("expected one drop, got %d", got)
	}
}

func TestPreJoinMessageNeverPublished(t *testing.T) {
	env := newTestEnv(1)
	env.chat.messages["m1"].Timestamp = time.Now().Add(-48 * time.Hour) // before joined

	env.svc.HandleAdd(addEvent(5))

	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
	if got := env.records.count(); got != 0 {
		t.Fatalf("expected no crosspost records, got %d", got)
	}
}

func TestHiddenChannelSettingBlocksPublish(t *testing.T) {
	env := newTestEnv(1)
	env.settings.channels["c1"] = &models.ChannelSetting{ChannelID: "c1", Visible: false}

	env.svc.HandleAdd(addEvent(5))

	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
}

func TestNonPublicChannelWithoutSettingBlocksPublish(t *testing.T) {
	env := newTestEnv(1)
	env.chat.channels["c1"].Public = false

	env.svc.HandleAdd(addEvent(5))

	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
}

func TestVisibleSettingOverridesNonPublicChannel(t *testing.T) {
	env := newTestEnv(1)
	env.chat.channels["c1"].Public = false
	env.settings.channels["c1"] = &models.ChannelSetting{ChannelID: "c1", Visible: true}

	env.svc.HandleAdd(addEvent(5))

	if got := env.pub.callCount(); got != 1 {
		t.Fatalf("expected one publish call, got %d", got)
	}
}

func TestNonTextTargetChannelAborts(t *testing.T) {
	env := newTestEnv(1)
	env.chat.channels["log1"].Text = false

	env.svc.HandleAdd(addEvent(5))

	if got := env.pub.callCount(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
	if got := env.records.count(); got != 0 {
		t.Fatalf("expected no crosspost records, got %d", got)
	}
}

func TestPublishFailureLeavesMessageRetryable(t *testing.T) {
	env := newTestEnv(1)
	env.pub.err = errors.New("webhook exploded")

	env.svc.HandleAdd(addEvent(5))

	if got := env.pub.callCount(); got != 1 {
		t.Fatalf("expected one publish attempt, got %d", got)
	}
	if got := env.records.count(); got != 0 {
		t.Fatalf("expected no crosspost record after failure, got %d", got)
	}
	if got := env.counters.Snapshot().PublishErrors; got != 1 {
		t.Fatalf("expected one publish error, got %d", got)
	}

	// The next reaction retries and succeeds, the guard was released.
	env.pub.err = nil
	env.svc.HandleAdd(addEvent(6))

	if got := env.pub.callCount(); got != 2 {
		t.Fatalf("expected a retry publish attempt, got %d", got)
	}
	rec := env.records.record("m1")
	if rec == nil || rec.Count != 6 {
		t.Fatalf("expected record with count 6, got %+v", rec)
	}
}

func TestRemoveBeforeAddGoesNegative(t *testing.T) {
	env := newTestEnv(3)

	env.svc.HandleRemove(removeEvent())

	if got := env.tallies.amount("g1", "r1"); got != -1 {
		t.Fatalf("expected tally -1, got %d", got)
	}
}

func TestTallyCommutativeAcrossOrdering(t *testing.T) {
	env := newTestEnv(100) // threshold never reached, tally only

	var wg sync.WaitGroup
	deltas := []models.ReactionKind{
		models.ReactionAdd, models.ReactionAdd, models.ReactionRemove,
		models.ReactionAdd, models.ReactionRemove, models.ReactionAdd,
	}
	for _, kind := range deltas {
		wg.Add(1)
		go func(kind models.ReactionKind) {
			defer wg.Done()
			if kind == models.ReactionAdd {
				env.svc.HandleAdd(addEvent(1))
			} else {
				env.svc.HandleRemove(removeEvent())
			}
		}(kind)
	}
	wg.Wait()

	if got := env.tallies.amount("g1", "r1"); got != 2 {
		t.Fatalf("expected tally 2 regardless of delivery order, got %d", got)
	}
}

// TestConcurrentFirstCrossingPublishesOnce races many add events over the
// first threshold crossing. The publisher is parked on a channel so the
// dedup guard stays held while every other event runs to completion; only
// one attempt may reach the publisher.
func TestConcurrentFirstCrossingPublishesOnce(t *testing.T) {
	env := newTestEnv(3)
	block := make(chan struct{})
	env.pub.block = block

	const n = 16
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			env.svc.HandleAdd(addEvent(3))
			done <- struct{}{}
		}()
	}

	// All events except the one parked in the publisher finish.
	for i := 0; i < n-1; i++ {
		<-done
	}
	close(block)
	<-done

	if got := env.pub.callCount(); got != 1 {
		t.Fatalf("expected exactly one publish call, got %d", got)
	}
	if got := env.records.count(); got != 1 {
		t.Fatalf("expected exactly one crosspost record, got %d", got)
	}
	if got := env.tallies.amount("g1", "r1"); got != n {
		t.Fatalf("expected tally %d, got %d", n, got)
	}
}
