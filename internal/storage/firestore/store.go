// Package firestore stores support sessions in Cloud Firestore and serves
// live queries from native snapshot listeners.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sapex/backend/internal/models"
	"sapex/backend/internal/realtime"
	"sapex/backend/internal/storage"
)

const watchBuffer = 32

type Store struct {
	client *firestore.Client
}

var _ storage.Storage = (*Store)(nil)

// NewStore creates a Firestore store for projectID.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("esupport")
}

func (s *Store) sessionRef(id string) *firestore.DocumentRef {
	return s.sessionsCol().Doc(id)
}

func (s *Store) messagesCol(sessionID string) *firestore.CollectionRef {
	return s.sessionRef(sessionID).Collection("messages")
}

func (s *Store) helpersCol() *firestore.CollectionRef {
	return s.client.Collection("helpers")
}

// Firestore types. helperId and outcome are pointers so that absent values
// are written as explicit nulls and can be queried with == nil.

type sessionDoc struct {
	SeekerID  string    `firestore:"seekerId"`
	HelperID  *string   `firestore:"helperId"`
	Topic     string    `firestore:"topic"`
	Status    string    `firestore:"status"`
	Notified  bool      `firestore:"notified"`
	Outcome   *float64  `firestore:"outcome"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp"`
	UpdatedAt time.Time `firestore:"updatedAt,serverTimestamp"`
}

type messageDoc struct {
	AuthorID     string    `firestore:"authorId"`
	AuthorName   string    `firestore:"authorName"`
	AuthorAvatar string    `firestore:"authorAvatar,omitempty"`
	Content      string    `firestore:"content"`
	CreatedAt    time.Time `firestore:"createdAt,serverTimestamp"`
}

type helperDoc struct {
	DisplayName    string   `firestore:"displayName"`
	Topics         []string `firestore:"topics"`
	TelegramChatID *int64   `firestore:"telegramChatId"`
	Available      bool     `firestore:"available"`
}

func toSessionDoc(s *models.SupportSession) sessionDoc {
	return sessionDoc{
		SeekerID: s.SeekerID,
		HelperID: s.HelperID,
		Topic:    string(s.Topic),
		Status:   string(s.Status),
		Notified: s.Notified,
		Outcome:  s.Outcome,
	}
}

func fromSessionDoc(id string, d sessionDoc) models.SupportSession {
	return models.SupportSession{
		ID:        id,
		SeekerID:  d.SeekerID,
		HelperID:  d.HelperID,
		Topic:     models.Topic(d.Topic),
		Status:    models.Status(d.Status),
		Notified:  d.Notified,
		Outcome:   d.Outcome,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func fromMessageDoc(id, sessionID string, d messageDoc) models.Message {
	return models.Message{
		ID:           id,
		SessionID:    sessionID,
		AuthorID:     d.AuthorID,
		AuthorName:   d.AuthorName,
		AuthorAvatar: d.AuthorAvatar,
		Content:      d.Content,
		CreatedAt:    d.CreatedAt,
	}
}

func decodeSession(snap *firestore.DocumentSnapshot) (models.SupportSession, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.SupportSession{}, fmt.Errorf("decode sessionDoc %s: %w", snap.Ref.ID, err)
	}
	return fromSessionDoc(snap.Ref.ID, doc), nil
}

func decodeMessage(sessionID string, snap *firestore.DocumentSnapshot) (models.Message, error) {
	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.Message{}, fmt.Errorf("decode messageDoc %s: %w", snap.Ref.ID, err)
	}
	return fromMessageDoc(snap.Ref.ID, sessionID, doc), nil
}

func notFound(err error) error {
	if status.Code(err) == codes.NotFound {
		return storage.ErrNotFound
	}
	return err
}

func changeKind(k firestore.DocumentChangeKind) realtime.ChangeKind {
	switch k {
	case firestore.DocumentAdded:
		return realtime.Added
	case firestore.DocumentRemoved:
		return realtime.Removed
	default:
		return realtime.Modified
	}
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, sess *models.SupportSession) error {
	sess.Notified = false
	ref := s.sessionsCol().NewDoc()
	wr, err := ref.Create(ctx, toSessionDoc(sess))
	if err != nil {
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	sess.ID = ref.ID
	sess.CreatedAt, sess.UpdatedAt = wr.UpdateTime, wr.UpdateTime
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.SupportSession, error) {
	snap, err := s.sessionRef(id).Get(ctx)
	if err != nil {
		if errors.Is(notFound(err), storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}
	sess, err := decodeSession(snap)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// AssignHelper checks and writes inside one transaction.
func (s *Store) AssignHelper(ctx context.Context, id, helperID string) error {
	ref := s.sessionRef(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return notFound(err)
		}
		sess, err := decodeSession(snap)
		if err != nil {
			return err
		}
		if sess.HasHelper() {
			return storage.ErrAlreadyMatched
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "helperId", Value: helperID},
			{Path: "status", Value: string(models.StatusMatched)},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		})
	})
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrAlreadyMatched) {
		return err
	}
	if err != nil {
		return fmt.Errorf("firestore AssignHelper: %w", err)
	}
	return nil
}

func (s *Store) MarkNotified(ctx context.Context, id string) error {
	return s.update(ctx, id, "notified", true)
}

func (s *Store) SetOutcome(ctx context.Context, id string, outcome float64) error {
	return s.update(ctx, id, "outcome", outcome)
}

func (s *Store) update(ctx context.Context, id, path string, value interface{}) error {
	_, err := s.sessionRef(id).Update(ctx, []firestore.Update{
		{Path: path, Value: value},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if errors.Is(notFound(err), storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("firestore update %s: %w", path, err)
	}
	return nil
}

func (s *Store) sessionQuery(q models.SessionQuery) firestore.Query {
	fq := s.sessionsCol().Query
	if q.SeekerID != "" {
		fq = fq.Where("seekerId", "==", q.SeekerID)
	}
	if q.HelperID != "" {
		fq = fq.Where("helperId", "==", q.HelperID)
	}
	if q.Status != models.StatusNone {
		fq = fq.Where("status", "==", string(q.Status))
	}
	if q.OpenOnly {
		fq = fq.Where("outcome", "==", nil)
	}
	if q.UnmatchedOnly {
		fq = fq.Where("helperId", "==", nil)
	}
	return fq
}

// QuerySessions sorts client-side so no composite index is needed.
func (s *Store) QuerySessions(ctx context.Context, q models.SessionQuery) ([]models.SupportSession, error) {
	iter := s.sessionQuery(q).Documents(ctx)
	defer iter.Stop()

	out := make([]models.SupportSession, 0)
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore QuerySessions: %w", err)
		}
		sess, err := decodeSession(snap)
		if err != nil {
			return nil, err
		}
		if q.Matches(&sess) {
			out = append(out, sess)
		}
	}
	storage.SortSessions(out)
	return out, nil
}

func (s *Store) WatchSessions(ctx context.Context, q models.SessionQuery) (*realtime.Subscription[models.SupportSession], error) {
	sub, subCtx := realtime.NewSubscription[models.SupportSession](ctx, watchBuffer)
	iter := s.sessionQuery(q).Snapshots(subCtx)
	go pumpSnapshots(subCtx, sub, iter, decodeSession)
	return sub, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	if strings.TrimSpace(m.Content) == "" {
		return storage.ErrEmptyContent
	}
	if _, err := s.GetSession(ctx, m.SessionID); err != nil {
		return err
	}

	ref := s.messagesCol(m.SessionID).NewDoc()
	wr, err := ref.Create(ctx, messageDoc{
		AuthorID:     m.AuthorID,
		AuthorName:   m.AuthorName,
		AuthorAvatar: m.AuthorAvatar,
		Content:      m.Content,
	})
	if err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	m.ID = ref.ID
	m.CreatedAt = wr.UpdateTime
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	iter := s.messagesCol(sessionID).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := make([]models.Message, 0)
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListMessages: %w", err)
		}
		m, err := decodeMessage(sessionID, snap)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	storage.SortMessages(out)
	return out, nil
}

func (s *Store) WatchMessages(ctx context.Context, sessionID string) (*realtime.Subscription[models.Message], error) {
	sub, subCtx := realtime.NewSubscription[models.Message](ctx, watchBuffer)
	iter := s.messagesCol(sessionID).OrderBy("createdAt", firestore.Asc).Snapshots(subCtx)
	go pumpSnapshots(subCtx, sub, iter, func(snap *firestore.DocumentSnapshot) (models.Message, error) {
		return decodeMessage(sessionID, snap)
	})
	return sub, nil
}

// pumpSnapshots forwards document changes until the listener stops.
func pumpSnapshots[T any](
	ctx context.Context,
	sub *realtime.Subscription[T],
	iter *firestore.QuerySnapshotIterator,
	decode func(*firestore.DocumentSnapshot) (T, error),
) {
	defer iter.Stop()
	for {
		qs, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled || err == iterator.Done {
				sub.Finish(nil)
				return
			}
			sub.Finish(fmt.Errorf("firestore snapshot listener: %w", err))
			return
		}
		for _, change := range qs.Changes {
			doc, err := decode(change.Doc)
			if err != nil {
				slog.Warn("firestore: skipping undecodable document", "error", err)
				continue
			}
			if !sub.Send(ctx, realtime.Change[T]{Kind: changeKind(change.Kind), Doc: doc}) {
				sub.Finish(nil)
				return
			}
		}
	}
}

// ─────────────────────────────────────────
// HelperStore implementation
// ─────────────────────────────────────────

// SaveHelper merges the profile so the availability flag survives.
func (s *Store) SaveHelper(ctx context.Context, h *models.Helper) error {
	ref := s.helpersCol().NewDoc()
	if h.ID != "" {
		ref = s.helpersCol().Doc(h.ID)
	}
	topics := []string(h.Topics)
	if topics == nil {
		topics = []string{}
	}
	_, err := ref.Set(ctx, map[string]interface{}{
		"displayName":    h.DisplayName,
		"topics":         topics,
		"telegramChatId": h.TelegramChatID,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore SaveHelper: %w", err)
	}
	h.ID = ref.ID
	return nil
}

func (s *Store) GetHelper(ctx context.Context, id string) (*models.Helper, error) {
	snap, err := s.helpersCol().Doc(id).Get(ctx)
	if err != nil {
		if errors.Is(notFound(err), storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetHelper: %w", err)
	}
	h, err := decodeHelper(snap)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func decodeHelper(snap *firestore.DocumentSnapshot) (models.Helper, error) {
	var doc helperDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.Helper{}, fmt.Errorf("decode helperDoc %s: %w", snap.Ref.ID, err)
	}
	return models.Helper{
		ID:             snap.Ref.ID,
		DisplayName:    doc.DisplayName,
		Topics:         doc.Topics,
		TelegramChatID: doc.TelegramChatID,
	}, nil
}

func (s *Store) ListLinkedHelpers(ctx context.Context) ([]models.Helper, error) {
	iter := s.helpersCol().Where("telegramChatId", "!=", nil).Documents(ctx)
	defer iter.Stop()

	out := make([]models.Helper, 0)
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListLinkedHelpers: %w", err)
		}
		h, err := decodeHelper(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddHelperToPool(ctx context.Context, helperID string) error {
	return s.setAvailable(ctx, helperID, true)
}

func (s *Store) RemoveHelperFromPool(ctx context.Context, helperID string) error {
	return s.setAvailable(ctx, helperID, false)
}

func (s *Store) setAvailable(ctx context.Context, helperID string, available bool) error {
	_, err := s.helpersCol().Doc(helperID).Set(ctx, map[string]interface{}{
		"available": available,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore set helper availability: %w", err)
	}
	return nil
}

func (s *Store) GetAvailableHelpers(ctx context.Context) ([]string, error) {
	iter := s.helpersCol().Where("available", "==", true).Documents(ctx)
	defer iter.Stop()

	out := make([]string, 0)
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore GetAvailableHelpers: %w", err)
		}
		out = append(out, snap.Ref.ID)
	}
	sort.Strings(out)
	return out, nil
}
