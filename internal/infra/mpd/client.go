// Package mpd wraps gompd with reconnection and an idle watcher.
package mpd

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// Client is a single MPD command connection plus an optional idle watcher.
// Commands are serialized; a dropped connection is redialed on next use.
type Client struct {
	mu       sync.Mutex
	conn     *mpd.Client
	watcher  *mpd.Watcher
	host     string
	port     int
	password string
}

func NewClient(host string, port int, password string) *Client {
	return &Client{host: host, port: port, password: password}
}

// Addr returns the host:port the client dials.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Connect dials MPD, replacing any existing connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked()
	return c.dialLocked()
}

func (c *Client) dialLocked() error {
	conn, err := mpd.DialAuthenticated("tcp", c.Addr(), c.password)
	if err != nil {
		return fmt.Errorf("mpd dial %s: %w", c.Addr(), err)
	}
	c.conn = conn
	log.Info().Str("addr", c.Addr()).Msg("Connected to MPD")
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// exec runs fn on a live connection.
func (c *Client) exec(fn func(*mpd.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Ping(); err != nil {
			log.Warn().Err(err).Str("addr", c.Addr()).Msg("MPD connection lost, redialing")
			c.dropLocked()
		}
	}
	if c.conn == nil {
		if err := c.dialLocked(); err != nil {
			return err
		}
	}
	return fn(c.conn)
}

// Close closes the command connection and the watcher.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping reports whether MPD is reachable, redialing if needed.
func (c *Client) Ping() error {
	return c.exec(func(*mpd.Client) error { return nil })
}

// Status returns the player status and the current song in one snapshot.
func (c *Client) Status() (Status, error) {
	var st Status
	err := c.exec(func(cl *mpd.Client) error {
		attrs, err := cl.Status()
		if err != nil {
			return err
		}
		song, err := cl.CurrentSong()
		if err != nil {
			return err
		}
		st = ParseStatus(attrs, song)
		return nil
	})
	return st, err
}

// Play starts playback at queue position pos. A negative pos resumes the current track.
func (c *Client) Play(pos int) error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.Play(pos)
	})
}

// Pause pauses or resumes playback.
func (c *Client) Pause(pause bool) error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.Pause(pause)
	})
}

func (c *Client) Stop() error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.Stop()
	})
}

func (c *Client) Next() error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.Next()
	})
}

func (c *Client) Previous() error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.Previous()
	})
}

// Seek moves within the current song. With relative set, d is added to the
// current position.
func (c *Client) Seek(d time.Duration, relative bool) error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.SeekCur(d, relative)
	})
}

// SetRandom toggles shuffle.
func (c *Client) SetRandom(on bool) error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.Random(on)
	})
}

func (c *Client) SetRepeat(on bool) error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.Repeat(on)
	})
}

// SetSingle limits repeat to the current song.
func (c *Client) SetSingle(on bool) error {
	return c.exec(func(cl *mpd.Client) error {
		return cl.Single(on)
	})
}

// ReplaceQueue clears the queue and enqueues uri. A uri of the form
// "playlist:<name>" loads a stored playlist instead.
func (c *Client) ReplaceQueue(uri string) error {
	return c.exec(func(cl *mpd.Client) error {
		if err := cl.Clear(); err != nil {
			return err
		}
		if name, ok := PlaylistName(uri); ok {
			return cl.PlaylistLoad(name, -1, -1)
		}
		return cl.Add(uri)
	})
}

// Watch streams MPD subsystem changes until ctx is done. Watcher errors are
// logged and the watch continues.
func (c *Client) Watch(ctx context.Context, subsystems ...string) (<-chan string, error) {
	watcher, err := mpd.NewWatcher("tcp", c.Addr(), c.password, subsystems...)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()

	ch := make(chan string, 10)

	go func() {
		defer close(ch)
		defer c.closeWatcher(watcher)
		for {
			select {
			case <-ctx.Done():
				return
			case subsystem, ok := <-watcher.Event:
				if !ok {
					return
				}
				select {
				case ch <- subsystem:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				log.Error().Err(err).Str("addr", c.Addr()).Msg("MPD watcher error")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (c *Client) closeWatcher(w *mpd.Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher == w {
		w.Close()
		c.watcher = nil
	}
}
