// Package lifecycle owns every state transition a mail item goes
// through in a session: drafts moving between composing, saved, queued,
// sent and failed, and received messages moving between folders. All
// file-system effects of a transition happen here or in the store; the
// composition packages never change state tags.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wren-mail/wren/internal/compose"
	"github.com/wren-mail/wren/internal/config"
	"github.com/wren-mail/wren/internal/store"
)

const failedSuffix = ".failed"

// ErrNoDrafts indicates a resume with nothing to resume.
var ErrNoDrafts = errors.New("no resumable drafts")

// Engine drives the message lifecycle. Construct with New and the
// required options.
type Engine struct {
	store     *store.Store
	cfg       config.Config
	sender    Sender
	renderers []compose.Renderer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithSender(s Sender) Option {
	return func(e *Engine) { e.sender = s }
}

func WithRenderers(r []compose.Renderer) Option {
	return func(e *Engine) { e.renderers = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine. A store and logger are required; renderers
// default to the built-in chain and the clock to wall time. A sender is
// only needed once Send is called.
func New(opts ...Option) (*Engine, error) {
	var e Engine
	for _, opt := range opts {
		opt(&e)
	}
	if e.store == nil {
		return nil, errors.New("requires store")
	}
	if e.logger == nil {
		return nil, errors.New("requires logger")
	}
	if e.renderers == nil {
		e.renderers = compose.DefaultRenderers()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return &e, nil
}

// Compose derives a new draft in Composing state. Attachments carried
// over from the original are materialized as files under the drafts
// folder plus Attachment: directives in the body, so a resumed draft
// needs nothing beyond its own file.
func (e *Engine) Compose(op compose.Operation, orig *compose.Original, opts compose.DeriveOptions) (*Draft, error) {
	cd, err := compose.NewDraft(op, orig, e.cfg, opts)
	if err != nil {
		return nil, err
	}
	d := &Draft{Draft: cd, state: StateComposing}
	if err := e.materializeCarried(d); err != nil {
		return nil, err
	}
	return d, nil
}

// ComposeFromTemplate starts a draft from template content.
func (e *Engine) ComposeFromTemplate(content string) (*Draft, error) {
	cd, err := compose.NewDraftFromTemplate(content, e.cfg)
	if err != nil {
		return nil, err
	}
	return &Draft{Draft: cd, state: StateComposing}, nil
}

func (e *Engine) materializeCarried(d *Draft) error {
	if len(d.Attachments) == 0 {
		return nil
	}
	partsDir := filepath.Join(e.store.Path(store.FolderDrafts), "parts-"+e.now().Format("20060102150405"))
	if err := os.MkdirAll(partsDir, 0o700); err != nil {
		return errors.Wrap(err, "creating attachment dir")
	}

	var lines []string
	for _, att := range d.Attachments {
		path := filepath.Join(partsDir, att.Name)
		if err := os.WriteFile(path, att.Data, 0o600); err != nil {
			return errors.Wrapf(err, "writing carried attachment %s", att.Name)
		}
		lines = append(lines, "Attachment: "+path)
	}
	d.Body = d.Body + "\n\n" + strings.Join(lines, "\n") + "\n"
	d.Attachments = nil
	return nil
}

// Save persists the draft as a raw file in the drafts folder.
// Idempotent within one composing session: repeated saves overwrite the
// same scratch file.
func (e *Engine) Save(d *Draft) error {
	if !canTransition(d.state, StateSaved) && d.state != StateSaved {
		return errors.Wrapf(ErrIllegalTransition, "save from %s", d.state)
	}
	data, err := d.Marshal()
	if err != nil {
		return err
	}

	if d.Path == "" {
		subject, _ := d.Header.Subject()
		name := compose.DraftName(subject, e.now())
		path, err := e.store.Write(store.FolderDrafts, name, data)
		if err != nil {
			return errors.Wrap(err, "saving draft")
		}
		d.Path = path
	} else if err := os.WriteFile(d.Path, data, 0o600); err != nil {
		return errors.Wrap(err, "saving draft")
	}

	d.state = StateSaved
	e.logger.Debug("draft saved", slog.String("path", d.Path))
	return nil
}

// Queue persists the draft and marks it for later batch sending by
// moving it into the outbox. Delivery is not attempted.
func (e *Engine) Queue(d *Draft) error {
	if d.state == StateComposing {
		if err := e.Save(d); err != nil {
			return err
		}
	}
	if !canTransition(d.state, StateQueued) {
		return errors.Wrapf(ErrIllegalTransition, "queue from %s", d.state)
	}
	path, err := e.store.MoveFile(d.Path, store.FolderOutbox)
	if err != nil {
		return errors.Wrap(err, "queueing draft")
	}
	d.Path = path
	d.state = StateQueued
	e.logger.Info("draft queued", slog.String("path", d.Path))
	return nil
}

// ListResumable exposes the saved drafts eligible for resume, newest
// first, for caller-side disambiguation.
func (e *Engine) ListResumable() ([]string, error) {
	return compose.ListDrafts(e.store.Path(store.FolderDrafts))
}

// Resume loads a saved draft back into Composing state. With an empty
// path there must be exactly one eligible draft; otherwise the caller
// gets ErrNoDrafts or ErrAmbiguousDraft and must disambiguate. Resuming
// a failed draft clears its failure annotation.
func (e *Engine) Resume(path string) (*Draft, error) {
	if path == "" {
		candidates, err := e.ListResumable()
		if err != nil {
			return nil, err
		}
		switch len(candidates) {
		case 0:
			return nil, ErrNoDrafts
		case 1:
			path = candidates[0]
		default:
			return nil, errors.Wrapf(compose.ErrAmbiguousDraft, "%d candidates", len(candidates))
		}
	}

	cd, err := compose.LoadDraft(path)
	if err != nil {
		return nil, errors.Wrap(err, "resuming draft")
	}

	d := &Draft{Draft: cd, Path: path, state: StateSaved}
	if reason, err := os.ReadFile(path + failedSuffix); err == nil {
		d.state = StateFailed
		d.reason = strings.TrimSpace(string(reason))
	}
	if err := d.transition(StateComposing); err != nil {
		return nil, err
	}
	_ = os.Remove(path + failedSuffix)
	d.reason = ""
	return d, nil
}

// Load reads a saved draft or outbox file into the state it was left
// in: Queued when under the outbox, Failed when a failure annotation
// exists, Saved otherwise.
func (e *Engine) Load(path string) (*Draft, error) {
	cd, err := compose.LoadDraft(path)
	if err != nil {
		return nil, err
	}
	d := &Draft{Draft: cd, Path: path, state: StateSaved}
	if filepath.Dir(path) == e.store.Path(store.FolderOutbox) {
		d.state = StateQueued
	}
	if reason, err := os.ReadFile(path + failedSuffix); err == nil {
		d.state = StateFailed
		d.reason = strings.TrimSpace(string(reason))
	}
	return d, nil
}

// Send assembles the draft and hands it to the transport. On success
// the assembled message is recorded in the sent store and the draft
// file removed; on failure the draft stays put, tagged Failed with the
// reason retained. A failed send is never retried here.
func (e *Engine) Send(ctx context.Context, d *Draft) error {
	if !canTransition(d.state, StateSent) {
		return errors.Wrapf(ErrIllegalTransition, "send from %s", d.state)
	}
	if e.sender == nil {
		return errors.New("no transport configured")
	}

	if list := strings.TrimSpace(d.Header.Get("X-MailingList")); list != "" {
		return e.sendMailingList(ctx, d, list)
	}

	asm, id, err := e.assembleForSend(d.Draft)
	if err != nil {
		return err
	}

	if err := e.transport(ctx, asm, id); err != nil {
		e.fail(d, err)
		return err
	}
	return e.finish(d, asm.Bytes)
}

// sendMailingList expands an X-MailingList draft into one send per
// configured recipient, with To rewritten each time.
func (e *Engine) sendMailingList(ctx context.Context, d *Draft, list string) error {
	var recipients []string
	for _, r := range e.cfg.MailingLists[list] {
		if strings.TrimSpace(r) != "" {
			recipients = append(recipients, strings.TrimSpace(r))
		}
	}
	if len(recipients) == 0 {
		return errors.Errorf("mailing list %q has no recipients", list)
	}

	var lastSent []byte
	for _, recipient := range recipients {
		clone := &compose.Draft{
			Header: d.Header.Copy(),
			Body:   d.Body,
		}
		clone.Header.Del("X-MailingList")
		clone.Header.Del("Cc")
		clone.Header.Del("Bcc")
		clone.Header.Set("To", recipient)

		asm, id, err := e.assembleForSend(clone)
		if err != nil {
			return err
		}
		if err := e.transport(ctx, asm, id); err != nil {
			e.fail(d, errors.Wrapf(err, "sending to %s", recipient))
			return err
		}
		lastSent = asm.Bytes
	}
	return e.finish(d, lastSent)
}

func (e *Engine) assembleForSend(cd *compose.Draft) (*compose.Assembled, config.Identity, error) {
	asm, err := compose.Assemble(cd, e.cfg, e.renderers)
	if err != nil {
		return nil, config.Identity{}, errors.Wrap(err, "assembling draft")
	}
	for _, attErr := range asm.AttachmentErrors {
		e.logger.Warn("attachment dropped",
			slog.String("path", attErr.Path),
			slog.Any("error", attErr.Err))
	}
	if asm.From == "" {
		return nil, config.Identity{}, compose.ErrNoFrom
	}
	id, ok := e.cfg.Identity(asm.From)
	if !ok {
		return nil, config.Identity{}, errors.Wrapf(compose.ErrNoFrom, "no identity for %s", asm.From)
	}
	return asm, id, nil
}

func (e *Engine) transport(ctx context.Context, asm *compose.Assembled, id config.Identity) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout())
	defer cancel()
	return e.sender.Send(ctx, asm.From, asm.Recipients, asm.Bytes, id)
}

func (e *Engine) fail(d *Draft, cause error) {
	if err := d.transition(StateFailed); err != nil {
		return
	}
	d.reason = cause.Error()
	if d.Path != "" {
		_ = os.WriteFile(d.Path+failedSuffix, []byte(cause.Error()+"\n"), 0o600)
	}
	e.logger.Error("delivery failed",
		slog.String("draft", d.Path),
		slog.Any("error", cause))
}

func (e *Engine) finish(d *Draft, sent []byte) error {
	subject, _ := d.Header.Subject()
	name := fmt.Sprintf("%s-%s.eml", e.now().Format("20060102150405"), compose.Subjectify(subject))
	if _, err := e.store.Write(store.FolderSent, name, sent); err != nil {
		return errors.Wrap(err, "recording sent copy")
	}
	if d.Path != "" {
		_ = os.Remove(d.Path)
		_ = os.Remove(d.Path + failedSuffix)
	}
	if err := d.transition(StateSent); err != nil {
		return err
	}
	d.sentAt = e.now()
	e.logger.Info("message sent", slog.String("subject", subject))
	return nil
}

// SendResult reports one outbox entry's send outcome.
type SendResult struct {
	Path string
	Err  error
}

// SendOutbox sends everything queued in the outbox, oldest first. One
// message's failure never stops the rest. Drafts already tagged Failed
// are not retried; their refusal is reported and the user must resume
// them explicitly.
func (e *Engine) SendOutbox(ctx context.Context) ([]SendResult, error) {
	items, err := e.store.Items(store.FolderOutbox)
	if err != nil {
		return nil, err
	}

	var results []SendResult
	for _, item := range items {
		if strings.HasSuffix(item.Path, failedSuffix) {
			continue
		}
		d, err := e.Load(item.Path)
		if err != nil {
			results = append(results, SendResult{Path: item.Path, Err: err})
			continue
		}
		results = append(results, SendResult{Path: item.Path, Err: e.Send(ctx, d)})
	}
	return results, nil
}

// Discard aborts a composition, deleting the scratch file if one was
// created. Not a modeled failure.
func (e *Engine) Discard(d *Draft) error {
	if d.Path != "" {
		if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		_ = os.Remove(d.Path + failedSuffix)
		d.Path = ""
	}
	return nil
}

// CheckNew surfaces newly delivered mail, moving it from new/ to cur/.
func (e *Engine) CheckNew() (int, error) {
	return e.store.CheckNew()
}

// SaveTo files a received message into a named folder.
func (e *Engine) SaveTo(item *store.Item, folder string) error {
	return e.store.Move(item, folder)
}

// Remove moves a received message to the trash folder.
func (e *Engine) Remove(item *store.Item) error {
	return e.store.Move(item, store.FolderTrash)
}
