package relay

import "fmt"

type BackpressureAction int

const (
	DropMessage BackpressureAction = iota
	KickConn
)

func (a BackpressureAction) String() string {
	switch a {
	case DropMessage:
		return "drop"
	case KickConn:
		return "kick"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackpressure(c Conn) BackpressureAction
}

// DropPolicy loses the message and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(Conn) BackpressureAction { return DropMessage }

// KickPolicy disconnects a participant that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackpressure(Conn) BackpressureAction { return KickConn }

// PolicyByName maps the config value to a Policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
