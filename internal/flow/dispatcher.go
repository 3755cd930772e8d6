package flow

import (
	"context"
	"errors"
	"fmt"
	"kwrelay/internal/telemetry"
	"kwrelay/internal/types"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Registry is the mutable set a command operates on.
type Registry interface {
	Add(ctx context.Context, entry string) (types.Outcome, error)
	Remove(ctx context.Context, entry string) (types.Outcome, error)
	Refresh(ctx context.Context) error
	List() []string
	Len() int
	Resource() string
}

// UserRegistry is a Registry that can also answer authorization checks.
type UserRegistry interface {
	Registry
	IsAuthorized(ctx context.Context, username string) bool
}

// Dispatcher maps commands onto registry mutations. Every command except help is gated on
// the sender being in the user registry; the check happens before any argument is looked at.
type Dispatcher struct {
	keywords Registry
	users    UserRegistry
	texts    Texts
}

// Result is the outcome of a dispatched command.
type Result struct {
	State State
	Reply types.Reply
	Err   error
}

func NewDispatcher(keywords Registry, users UserRegistry, texts Texts) *Dispatcher {
	telemetry.Init()
	return &Dispatcher{keywords: keywords, users: users, texts: texts}
}

// Handle implements ports.CommandHandler.
func (d *Dispatcher) Handle(ctx context.Context, cmd types.Command) types.Reply {
	return d.Dispatch(ctx, cmd).Reply
}

// Dispatch runs cmd through Received -> AuthorizationChecked -> ArgumentValidated -> Applied.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd types.Command) Result {
	name := CommandName(cmd.Name)
	logger := log.WithFields(log.Fields{
		"command":  name,
		"username": cmd.Username,
		"chat":     cmd.Chat.Title,
	})

	res := d.dispatch(ctx, name, cmd)
	label := name
	if !IsKnownCommand(name) {
		label = "unknown"
	}
	telemetry.CommandsTotal.WithLabelValues(label, StatusTextMap[res.State]).Inc()
	switch res.State {
	case SaveFailed:
		logger.WithError(res.Err).Error("command could not be persisted")
	case Rejected:
		logger.Warn("command rejected: sender not authorized")
	default:
		logger.WithField("state", StatusTextMap[res.State]).Info("command handled")
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, cmd types.Command) Result {
	switch name {
	case CmdHelp, CmdStart:
		return Result{State: HelpShown, Reply: reply(d.texts.Help)}
	}
	if !IsKnownCommand(name) {
		return Result{State: UnknownCommand, Reply: reply(d.texts.Unknown)}
	}

	if !d.users.IsAuthorized(ctx, cmd.Username) {
		return Result{
			State: Rejected,
			Reply: reply(d.texts.Denied[name]),
			Err:   types.Err(types.ErrAuthorizationDenied, nil, "%q may not run %s", cmd.Username, name),
		}
	}

	switch name {
	case CmdListWords:
		return d.list(ctx, d.keywords, d.texts.KeywordsEmpty, d.texts.KeywordsHeader)
	case CmdListUsers:
		return d.list(ctx, d.users, d.texts.UsersEmpty, d.texts.UsersHeader)
	}

	arg := strings.TrimSpace(strings.Join(cmd.Args, " "))
	if arg == "" {
		return Result{
			State: InvalidArgument,
			Reply: reply(d.texts.MissingArg[name]),
			Err:   types.Err(types.ErrInvalidArgument, nil, "%s needs an argument", name),
		}
	}

	switch name {
	case CmdAddWord:
		return d.add(ctx, d.keywords, arg, d.texts.KeywordAdded, d.texts.KeywordExists, d.texts.MissingArg[name])
	case CmdRemoveWord:
		return d.remove(ctx, d.keywords, arg, d.texts.KeywordRemoved, d.texts.KeywordNotFound, d.texts.MissingArg[name])
	case CmdAddUser:
		return d.add(ctx, d.users, arg, d.texts.UserAdded, d.texts.UserExists, d.texts.MissingArg[name])
	default: // CmdRemoveUser
		return d.remove(ctx, d.users, arg, d.texts.UserRemoved, d.texts.UserNotFound, d.texts.MissingArg[name])
	}
}

func (d *Dispatcher) add(ctx context.Context, r Registry, arg, addedText, existsText, missingText string) Result {
	out, err := r.Add(ctx, arg)
	if res, failed := d.failure(r, err, missingText); failed {
		return res
	}
	if out == types.AlreadyPresent {
		return Result{State: Confirmed, Reply: replyf(existsText, arg)}
	}
	return Result{State: Confirmed, Reply: replyf(addedText, arg)}
}

func (d *Dispatcher) remove(ctx context.Context, r Registry, arg, removedText, notFoundText, missingText string) Result {
	out, err := r.Remove(ctx, arg)
	if res, failed := d.failure(r, err, missingText); failed {
		return res
	}
	if out == types.NotFound {
		return Result{
			State: NotFound,
			Reply: replyf(notFoundText, arg),
			Err:   types.Err(types.ErrNotFound, nil, "%q not in %s", arg, r.Resource()),
		}
	}
	return Result{State: Confirmed, Reply: replyf(removedText, arg)}
}

// failure converts a registry error into a Result and refreshes the size gauge otherwise.
func (d *Dispatcher) failure(r Registry, err error, missingText string) (Result, bool) {
	if err == nil {
		telemetry.SetRegistrySize(r.Resource(), r.Len())
		return Result{}, false
	}
	if errors.Is(err, types.ErrInvalidArgument) {
		return Result{State: InvalidArgument, Reply: reply(missingText), Err: err}, true
	}
	return Result{State: SaveFailed, Reply: reply(d.texts.SaveFailed), Err: err}, true
}

func (d *Dispatcher) list(ctx context.Context, r Registry, emptyText, header string) Result {
	_ = r.Refresh(ctx)
	entries := r.List()
	if len(entries) == 0 {
		return Result{State: Confirmed, Reply: reply(emptyText)}
	}
	return Result{State: Confirmed, Reply: reply(header + "\n" + strings.Join(entries, "\n"))}
}

// IsKnownCommand reports whether name (already normalized) is handled by the Dispatcher.
func IsKnownCommand(name string) bool {
	switch name {
	case CmdAddWord, CmdRemoveWord, CmdListWords, CmdAddUser, CmdRemoveUser, CmdListUsers, CmdHelp, CmdStart:
		return true
	}
	return false
}

// CommandName normalizes a raw command token: "/Add_Word@relay_bot" becomes "add_word".
func CommandName(raw string) string {
	name := strings.TrimLeft(strings.TrimSpace(raw), "/!")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// ParseCommand splits text of the form "<prefix>name arg arg" into a Command. ok is false when
// text does not start with one of prefixes.
func ParseCommand(text string, prefixes string) (cmd types.Command, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" || !strings.ContainsRune(prefixes, rune(text[0])) {
		return types.Command{}, false
	}
	fields := strings.Fields(text)
	name := CommandName(fields[0])
	if name == "" {
		return types.Command{}, false
	}
	return types.Command{Name: name, Args: fields[1:]}, true
}

func reply(text string) types.Reply {
	return types.Reply{Text: text}
}

func replyf(format, arg string) types.Reply {
	return types.Reply{Text: fmt.Sprintf(format, arg)}
}
