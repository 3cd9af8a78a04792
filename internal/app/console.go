package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/1ureka/salvo/internal/link"
	"github.com/1ureka/salvo/internal/protocol"
)

// Usage lists the console commands.
const Usage = `commands:
  ready [n]          announce that setup is finished
  ships x y [x y...] send the occupied squares
  strike x y         fire at a square
  result hit|miss x y
                     report the outcome of a strike
  over [n]           declare the game over
  turn               hand the turn to the opponent
  quit               leave the game`

// ParseCommand turns one console line into a packet. quit reports the quit
// command; an empty line yields neither a packet nor an error.
func ParseCommand(line string) (pkt *protocol.Packet, quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	nums := func(want string, n int) ([]int32, error) {
		if n >= 0 && len(args) != n {
			return nil, fmt.Errorf("usage: %s", want)
		}
		out := make([]int32, len(args))
		for i, a := range args {
			v, err := strconv.ParseInt(a, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number (usage: %s)", a, want)
			}
			out[i] = int32(v)
		}
		return out, nil
	}

	switch cmd {
	case "quit", "exit":
		return nil, true, nil

	case "ready", "over":
		sentinel := int32(1)
		if len(args) > 0 {
			v, err := nums(cmd+" [n]", 1)
			if err != nil {
				return nil, false, err
			}
			sentinel = v[0]
		}
		if cmd == "ready" {
			return protocol.NewReady(sentinel), false, nil
		}
		return protocol.NewGameOver(sentinel), false, nil

	case "ships":
		v, err := nums("ships x y [x y...]", -1)
		if err != nil {
			return nil, false, err
		}
		if len(v) == 0 || len(v)%2 != 0 {
			return nil, false, errors.New("usage: ships x y [x y...]")
		}
		return protocol.New(protocol.TypeShipPositions, v...), false, nil

	case "strike":
		v, err := nums("strike x y", 2)
		if err != nil {
			return nil, false, err
		}
		return protocol.NewStrike(protocol.Point{X: v[0], Y: v[1]}), false, nil

	case "result":
		if len(args) != 3 {
			return nil, false, errors.New("usage: result hit|miss x y")
		}
		var hit bool
		switch strings.ToLower(args[0]) {
		case "hit", "1":
			hit = true
		case "miss", "0":
		default:
			return nil, false, errors.New("usage: result hit|miss x y")
		}
		args = args[1:]
		v, err := nums("result hit|miss x y", 2)
		if err != nil {
			return nil, false, err
		}
		return protocol.NewStrikeResult(hit, protocol.Point{X: v[0], Y: v[1]}), false, nil

	case "turn":
		return protocol.NewYourTurn(), false, nil
	}

	return nil, false, fmt.Errorf("unknown command %q", fields[0])
}

// Describe renders a received packet for the console.
func Describe(pkt *protocol.Packet) string {
	switch pkt.Type() {
	case protocol.TypeReady:
		return "opponent is ready"
	case protocol.TypeShipPositions:
		return fmt.Sprintf("opponent placed ships at %v", pkt.Points())
	case protocol.TypeStrike:
		return fmt.Sprintf("opponent strikes %v", pkt.Points())
	case protocol.TypeStrikeResult:
		if pkt.Hit() {
			return fmt.Sprintf("hit at %v", pkt.Points())
		}
		return fmt.Sprintf("miss at %v", pkt.Points())
	case protocol.TypeGameOver:
		return "game over"
	case protocol.TypeYourTurn:
		return "your turn"
	}
	return pkt.String()
}

// ClosureMessage is the user-facing text for the end of a session.
func ClosureMessage(result link.Closure, peerInitiated bool) string {
	switch {
	case result == link.ClosureAbrupt:
		return "opponent disconnected unexpectedly"
	case result == link.ClosureControlled && peerInitiated:
		return "opponent left the game"
	case result == link.ClosureControlled:
		return "you left the game"
	}
	return "game still running"
}

// Console drives c from line commands read from in and prints received
// packets to out, until the session is over. End of input or cancelling
// ctx leaves the game. The returned error is ctx's, if any.
func Console(ctx context.Context, c *link.Connection, in io.Reader, out io.Writer) (link.Closure, error) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-c.Done():
				return
			}
		}
	}()

	drain := func() {
		for pkt := c.Receive(); pkt != nil; pkt = c.Receive() {
			fmt.Fprintf(out, "< %s\n", Describe(pkt))
		}
	}

	ctxDone := ctx.Done()
	var ctxErr error

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				c.Close()
				continue
			}
			pkt, quit, err := ParseCommand(line)
			switch {
			case quit:
				c.Close()
			case err != nil:
				fmt.Fprintf(out, "! %v\n", err)
			case pkt != nil:
				if err := c.Send(pkt); err != nil {
					fmt.Fprintf(out, "! %v\n", err)
				}
			}

		case <-c.Arrived():
			drain()

		case <-ctxDone:
			ctxErr = ctx.Err()
			ctxDone = nil
			c.Close()

		case <-c.Done():
			drain()
			result := c.Closure()
			fmt.Fprintf(out, "* %s\n", ClosureMessage(result, c.PeerInitiated()))
			return result, ctxErr
		}
	}
}
