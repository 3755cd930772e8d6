package types

import (
	"fmt"
	"time"
)

// Outcome is the non-error result of a registry mutation. Absent or duplicate entries are
// ordinary outcomes, not failures.
type Outcome int

const (
	Added Outcome = iota
	AlreadyPresent
	Removed
	NotFound
)

var OutcomeTextMap = map[Outcome]string{
	Added:          "added",
	AlreadyPresent: "already_present",
	Removed:        "removed",
	NotFound:       "not_found",
}

// Chat identifies the conversation an event came from.
type Chat struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Command is a parsed command event: name without the leading "/" or "!", the
// whitespace-separated argument tokens and the sender's username.
type Command struct {
	Name     string   `json:"command"`
	Args     []string `json:"args"`
	Username string   `json:"username"`
	Chat     Chat     `json:"chat"`
}

// ChatMessage is a plain, non-command text message.
type ChatMessage struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Chat     Chat   `json:"chat"`
}

// Reply is the text sent back to the chat a command came from.
type Reply struct {
	Text string `json:"text"`
}

// Notification is what gets forwarded to the target group when a message matches.
type Notification struct {
	ID        string    `json:"id"`
	ChatTitle string    `json:"chat_title"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Keywords  []string  `json:"keywords"`
	At        time.Time `json:"at"`
}

// Format renders the notification as the plain text forwarded to chat targets.
func (n Notification) Format() string {
	return fmt.Sprintf("Chat name: %s\n\nFrom username: %s\n\nMessage: %s", n.ChatTitle, n.Username, n.Text)
}
