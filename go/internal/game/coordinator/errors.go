package coordinator

import "errors"

var (
	// ErrNoDriverElected means the presence set is empty; clients pause and
	// wait for presence to return.
	ErrNoDriverElected = errors.New("no driver elected: presence set is empty")

	// ErrSpectator rejects an answer submission from the quiz creator, who
	// participates as a non-answering spectator with phase authority.
	ErrSpectator = errors.New("the quiz creator does not submit answers")

	// ErrNotJoined is returned for operations that require having joined the
	// room first.
	ErrNotJoined = errors.New("coordinator has not joined the room")
)
