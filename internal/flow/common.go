package flow

import "time"

// State is the terminal state a command ends in.
type State int

const (
	Confirmed State = iota // Mutation applied and persisted, or a read answered.
	Rejected               // Sender is not authorized.
	InvalidArgument        // Required argument missing.
	NotFound               // Remove on an absent entry.
	SaveFailed             // Store write failed; the change was rolled back.
	HelpShown
	UnknownCommand
)

var StatusTextMap = map[State]string{
	Confirmed:       "confirmed",
	Rejected:        "rejected",
	InvalidArgument: "invalid_argument",
	NotFound:        "not_found",
	SaveFailed:      "save_failed",
	HelpShown:       "help",
	UnknownCommand:  "unknown_command",
}

const (
	CmdAddWord    = "add_word"
	CmdRemoveWord = "remove_word"
	CmdListWords  = "list_words"
	CmdAddUser    = "add_user"
	CmdRemoveUser = "remove_user"
	CmdListUsers  = "list_users"
	CmdHelp       = "help"
	CmdStart      = "start"
)

var timeNow = time.Now

func SetTimNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}
