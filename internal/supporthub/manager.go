package supporthub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"sapex/backend/internal/models"
	"sapex/backend/internal/storage"
)

// ErrClientBusy is reported when a client queues commands faster than its
// store calls complete.
var ErrClientBusy = errors.New("too many pending commands")

const pendingCommands = 16

// ManagerService is the live hub: it owns every connected client and the
// subscriptions opened on its behalf. The hub loop only routes; store calls
// run on each client's own worker.
type ManagerService struct {
	Clients map[Client]*clientScope

	RegisterCh   chan Client
	UnregisterCh chan Client
	CommandCh    chan Command

	Storage storage.Storage

	teardown sync.WaitGroup
	done     chan struct{}
}

// clientScope holds the notifier, badge and conversations of one client.
// Everything but client, ctx and cancel belongs to the scope's worker.
type clientScope struct {
	client   Client
	ctx      context.Context
	cancel   context.CancelFunc
	commands chan Command
	notifier *MatchNotifier
	badge    *PendingBadge
	convs    map[string]*Conversation
	wg       sync.WaitGroup
}

func NewManagerService(s storage.Storage) *ManagerService {
	return &ManagerService{
		Clients:      make(map[Client]*clientScope),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		CommandCh:    make(chan Command),
		Storage:      s,
		done:         make(chan struct{}),
	}
}

// Done is closed when Run returns.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

// Run processes registrations and commands until ctx is cancelled, then
// closes every client.
func (m *ManagerService) Run(ctx context.Context) error {
	defer close(m.done)
	slog.Info("support hub started")

	for {
		select {
		case <-ctx.Done():
			for c := range m.Clients {
				m.unregister(c)
			}
			m.teardown.Wait()
			slog.Info("support hub stopped")
			return nil

		case c := <-m.RegisterCh:
			m.register(ctx, c)

		case c := <-m.UnregisterCh:
			m.unregister(c)

		case cmd := <-m.CommandCh:
			m.dispatch(cmd)
		}
	}
}

func (m *ManagerService) register(ctx context.Context, c Client) {
	if _, ok := m.Clients[c]; ok {
		return
	}
	scopeCtx, cancel := context.WithCancel(ctx)
	sc := &clientScope{
		client:   c,
		ctx:      scopeCtx,
		cancel:   cancel,
		commands: make(chan Command, pendingCommands),
		convs:    make(map[string]*Conversation),
	}
	m.Clients[c] = sc

	sc.wg.Add(1)
	go m.work(sc)

	c.Run()
	slog.Info("client registered", "user_id", c.GetUserID(), "clients", len(m.Clients))
}

// unregister drops the client from the hub at once; its subscriptions are
// torn down in the background.
func (m *ManagerService) unregister(c Client) {
	sc, ok := m.Clients[c]
	if !ok {
		return
	}
	delete(m.Clients, c)
	sc.cancel()

	m.teardown.Add(1)
	go func() {
		defer m.teardown.Done()
		sc.wg.Wait()
		c.Close()
	}()
	slog.Info("client unregistered", "user_id", c.GetUserID(), "clients", len(m.Clients))
}

func (m *ManagerService) dispatch(cmd Command) {
	sc, ok := m.Clients[cmd.Client]
	if !ok {
		return
	}
	select {
	case sc.commands <- cmd:
	default:
		sc.report(cmd, ErrClientBusy)
	}
}

// work opens the client's subscriptions and then runs its commands in order
// until the scope is cancelled.
func (m *ManagerService) work(sc *clientScope) {
	defer sc.wg.Done()
	defer sc.closeAll()

	m.subscribe(sc)
	for {
		select {
		case <-sc.ctx.Done():
			return
		case cmd := <-sc.commands:
			if err := m.handleCommand(sc, cmd); err != nil {
				sc.report(cmd, err)
			}
		}
	}
}

func (m *ManagerService) subscribe(sc *clientScope) {
	userID := sc.client.GetUserID()

	notifier, err := NewMatchNotifier(sc.ctx, m.Storage, userID)
	if err != nil {
		slog.Warn("match notifier unavailable", "user_id", userID, "error", err)
	} else {
		sc.notifier = notifier
		sc.forward(func(send chan<- models.Event) {
			for alert := range notifier.Alerts() {
				a := alert
				if !sc.push(send, models.Event{Type: models.EventMatchAlert, SessionID: a.SessionID, Alert: &a}) {
					return
				}
			}
		})
	}

	sc.badge = NewPendingBadge(sc.ctx, m.Storage, userID, RoleHelper)
	badge := sc.badge
	sc.forward(func(send chan<- models.Event) {
		if !sc.push(send, countEvent(badge.Count())) {
			return
		}
		for {
			select {
			case n := <-badge.Updates():
				if !sc.push(send, countEvent(n)) {
					return
				}
			case <-badge.Done():
				return
			case <-sc.ctx.Done():
				return
			}
		}
	})
}

func (m *ManagerService) handleCommand(sc *clientScope, cmd Command) error {
	ctx := sc.ctx
	userID := sc.client.GetUserID()

	switch cmd.Type {
	case models.CommandOpenConversation:
		return m.openConversation(sc, cmd.SessionID)
	case models.CommandCloseConversation:
		if conv, ok := sc.convs[cmd.SessionID]; ok {
			conv.Close()
			delete(sc.convs, cmd.SessionID)
		}
		return nil
	case models.CommandSendMessage:
		if err := m.checkParticipant(ctx, cmd.SessionID, userID); err != nil {
			return err
		}
		author := models.Author{ID: userID, Name: cmd.Name, Avatar: cmd.Avatar}
		_, err := AppendMessage(ctx, m.Storage, cmd.SessionID, author, cmd.Content)
		return err
	case models.CommandJoin:
		if err := AcknowledgeMatch(ctx, m.Storage, cmd.SessionID, userID); err != nil || sc.notifier == nil {
			return err
		}
		_, err := sc.notifier.Join(ctx, cmd.SessionID)
		return err
	case models.CommandDismiss:
		if err := AcknowledgeMatch(ctx, m.Storage, cmd.SessionID, userID); err != nil || sc.notifier == nil {
			return err
		}
		return sc.notifier.Dismiss(ctx, cmd.SessionID)
	default:
		return errors.New("unknown command " + cmd.Type)
	}
}

func (m *ManagerService) checkParticipant(ctx context.Context, sessionID, userID string) error {
	sess, err := m.Storage.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.IsParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

func (m *ManagerService) openConversation(sc *clientScope, sessionID string) error {
	if err := m.checkParticipant(sc.ctx, sessionID, sc.client.GetUserID()); err != nil {
		return err
	}
	if old, ok := sc.convs[sessionID]; ok {
		old.Close()
	}
	conv, err := OpenConversation(sc.ctx, m.Storage, sessionID)
	if err != nil {
		return err
	}
	sc.convs[sessionID] = conv
	sc.forward(func(send chan<- models.Event) {
		for msgs := range conv.Updates() {
			if !sc.push(send, models.Event{Type: models.EventMessages, SessionID: sessionID, Messages: msgs}) {
				return
			}
		}
	})
	return nil
}

// closeAll stops every subscription the worker opened.
func (sc *clientScope) closeAll() {
	sc.cancel()
	if sc.notifier != nil {
		sc.notifier.Close()
	}
	if sc.badge != nil {
		sc.badge.Close()
	}
	for id, conv := range sc.convs {
		conv.Close()
		delete(sc.convs, id)
	}
}

func (sc *clientScope) report(cmd Command, err error) {
	if sc.ctx.Err() != nil {
		return
	}
	slog.Warn("client command failed", "user_id", sc.client.GetUserID(), "type", cmd.Type, "session_id", cmd.SessionID, "error", err)
	select {
	case sc.client.GetSendChannel() <- models.Event{Type: models.EventError, SessionID: cmd.SessionID, Error: err.Error()}:
	default:
	}
}

// forward runs fn in a goroutine the scope waits for before closing the client.
func (sc *clientScope) forward(fn func(send chan<- models.Event)) {
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		fn(sc.client.GetSendChannel())
	}()
}

func (sc *clientScope) push(send chan<- models.Event, ev models.Event) bool {
	select {
	case send <- ev:
		return true
	case <-sc.ctx.Done():
		return false
	}
}

func countEvent(n int) models.Event {
	return models.Event{Type: models.EventPendingCount, Count: &n}
}
