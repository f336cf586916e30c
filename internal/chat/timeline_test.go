package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psds-microservice/support-service/internal/errs"
	"github.com/psds-microservice/support-service/internal/model"
)

type fakeSub struct {
	events  chan model.Message
	done    chan struct{}
	cancels int
}

func (s *fakeSub) Events() <-chan model.Message { return s.events }
func (s *fakeSub) Done() <-chan struct{}        { return s.done }
func (s *fakeSub) Cancel()                      { s.cancels++ }

type fakeFeed struct {
	sub *fakeSub
}

func (f *fakeFeed) Subscribe(uint64) Subscription { return f.sub }

func newFakeFeed() *fakeFeed {
	return &fakeFeed{sub: &fakeSub{
		events: make(chan model.Message, 16),
		done:   make(chan struct{}),
	}}
}

type fakeMessageStore struct {
	history []model.Message
	listErr error
	sendErr error
	inserts []model.Message
	nextID  uint64
}

func (s *fakeMessageStore) ListByTicket(context.Context, uint64) ([]model.Message, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.history, nil
}

func (s *fakeMessageStore) Insert(_ context.Context, m *model.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = time.Now()
	s.inserts = append(s.inserts, *m)
	return nil
}

func msg(id, ticketID uint64, sender string) model.Message {
	return model.Message{
		ID:        id,
		TicketID:  ticketID,
		SenderID:  sender,
		Body:      "*",
		CreatedAt: time.Unix(int64(id), 0),
	}
}

func mustOpen(t *testing.T, store MessageStore, feed Feed) *Timeline {
	t.Helper()
	tl, err := OpenTimeline(context.Background(), store, feed, model.Ticket{ID: 1, UserID: "u1", Status: model.TicketStatusOpen}, "u1")
	if err != nil {
		t.Fatalf("open timeline: %v", err)
	}
	t.Cleanup(tl.Close)
	return tl
}

func assertIDs(t *testing.T, got []model.Message, want ...uint64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("timeline length = %d, want %d", len(got), len(want))
	}
	for i, m := range got {
		if m.ID != want[i] {
			t.Fatalf("position %d: message %d, want %d", i, m.ID, want[i])
		}
	}
}

func TestTimelineAppendsLiveAfterHistory(t *testing.T) {
	store := &fakeMessageStore{history: []model.Message{msg(1, 1, "u1"), msg(2, 1, "s1")}}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	feed.sub.events <- msg(3, 1, "s1")
	feed.sub.events <- msg(4, 1, "u1")
	<-tl.Live()
	<-tl.Live()

	assertIDs(t, tl.Messages(), 1, 2, 3, 4)
}

func TestTimelineDedupesRedeliveredRow(t *testing.T) {
	// Строка 2 попала и в bulk read, и в push: длина не меняется,
	// префикс не пересортировывается.
	store := &fakeMessageStore{history: []model.Message{msg(1, 1, "u1"), msg(2, 1, "s1")}}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	feed.sub.events <- msg(2, 1, "s1")
	feed.sub.events <- msg(3, 1, "s1")
	<-tl.Live() // доходит только 3: дубль отсеян до Live

	assertIDs(t, tl.Messages(), 1, 2, 3)
}

func TestTimelineIgnoresOtherTickets(t *testing.T) {
	store := &fakeMessageStore{}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	feed.sub.events <- msg(5, 99, "s1")
	feed.sub.events <- msg(6, 1, "s1")
	<-tl.Live()

	assertIDs(t, tl.Messages(), 6)
}

func TestTimelineHistorySnapshotExcludesLiveArrivals(t *testing.T) {
	// Вставка в окно между открытием и отдачей истории потребителю:
	// строка, уже применённая к таймлайну, не должна оказаться и в
	// снимке History, и в Live одновременно.
	store := &fakeMessageStore{history: []model.Message{msg(1, 1, "u1")}}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	feed.sub.events <- msg(2, 1, "s1")
	deadline := time.Now().Add(2 * time.Second)
	for len(tl.Messages()) != 2 {
		if time.Now().After(deadline) {
			t.Fatal("live message was not applied")
		}
		time.Sleep(time.Millisecond)
	}

	assertIDs(t, tl.History(), 1)
	if live := <-tl.Live(); live.ID != 2 {
		t.Fatalf("live message %d, want 2", live.ID)
	}
	assertIDs(t, tl.Messages(), 1, 2)
}

func TestTimelineSendRejectsEmptyBody(t *testing.T) {
	store := &fakeMessageStore{}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	for _, body := range []string{"", "   ", "\n\t"} {
		if _, err := tl.Send(context.Background(), body); !errors.Is(err, errs.ErrEmptyMessage) {
			t.Fatalf("body %q: got %v, want ErrEmptyMessage", body, err)
		}
	}
	if len(store.inserts) != 0 {
		t.Fatalf("inserts = %d, want 0: empty body must be rejected before the store call", len(store.inserts))
	}
}

func TestTimelineSendAttributesViewer(t *testing.T) {
	store := &fakeMessageStore{}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	m, err := tl.Send(context.Background(), "  hello  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Body != "hello" {
		t.Fatalf("body = %q, want trimmed %q", m.Body, "hello")
	}
	if m.SenderID != "u1" || m.TicketID != 1 {
		t.Fatalf("sender/ticket = %q/%d, want u1/1", m.SenderID, m.TicketID)
	}

	// Локального эха нет: строка придёт через push и не задвоится.
	if len(tl.Messages()) != 0 {
		t.Fatal("send must not locally echo")
	}
	feed.sub.events <- *m
	<-tl.Live()
	feed.sub.events <- *m // повторная доставка того же id
	feed.sub.events <- msg(77, 1, "s1")
	<-tl.Live()
	assertIDs(t, tl.Messages(), m.ID, 77)
}

func TestTimelineSendFailureSurfaces(t *testing.T) {
	store := &fakeMessageStore{sendErr: errors.New("insert failed")}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	if _, err := tl.Send(context.Background(), "hello"); !errors.Is(err, errs.ErrSendFailed) {
		t.Fatalf("got %v, want ErrSendFailed", err)
	}
}

func TestTimelineLoadFailureCancelsSubscription(t *testing.T) {
	store := &fakeMessageStore{listErr: errors.New("connection refused")}
	feed := newFakeFeed()

	_, err := OpenTimeline(context.Background(), store, feed, model.Ticket{ID: 1}, "u1")
	if !errors.Is(err, errs.ErrLoadFailed) {
		t.Fatalf("got %v, want ErrLoadFailed", err)
	}
	if feed.sub.cancels != 1 {
		t.Fatalf("cancels = %d, want 1: failed open must not leak the subscription", feed.sub.cancels)
	}
}

func TestTimelineCloseCancelsSubscription(t *testing.T) {
	store := &fakeMessageStore{}
	feed := newFakeFeed()
	tl, err := OpenTimeline(context.Background(), store, feed, model.Ticket{ID: 1}, "u1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	tl.Close()
	tl.Close() // повторное закрытие безопасно
	if feed.sub.cancels != 1 {
		t.Fatalf("cancels = %d, want 1", feed.sub.cancels)
	}
	if tl.Err() != nil {
		t.Fatalf("clean close must not report interruption, got %v", tl.Err())
	}
}

func TestTimelineFeedDropIsObservable(t *testing.T) {
	store := &fakeMessageStore{}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	close(feed.sub.done)
	for range tl.Live() {
	}
	if !errors.Is(tl.Err(), errs.ErrStreamInterrupted) {
		t.Fatalf("got %v, want ErrStreamInterrupted", tl.Err())
	}
}

func TestTimelineTail(t *testing.T) {
	store := &fakeMessageStore{history: []model.Message{msg(1, 1, "u1"), msg(2, 1, "s1")}}
	feed := newFakeFeed()
	tl := mustOpen(t, store, feed)

	tail := tl.Tail()
	if tail == nil || tail.ID != 2 {
		t.Fatalf("tail = %v, want message 2", tail)
	}

	empty := mustOpen(t, &fakeMessageStore{}, newFakeFeed())
	if empty.Tail() != nil {
		t.Fatal("empty timeline must have nil tail")
	}
}
