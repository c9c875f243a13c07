package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-drowse/pkg/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxLineSize = 8 * 1024 * 1024

type replayOptions struct {
	InputPath string
	URL       string
	FPS       float64
	Start     bool
}

var replayOpts replayOptions

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Stream a recorded landmark file to a running server",
	Long: `Replay reads a JSON-lines file, one message per line, and sends it to
the landmark ingest socket at the given frame rate. Lines may be full
protocol messages or bare landmarks payloads.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd.Context(), replayOpts)
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayOpts.InputPath, "input", "i", "", "Path to a JSON-lines landmark recording")
	replayCmd.Flags().StringVarP(&replayOpts.URL, "url", "u", "ws://localhost:8080/ws/landmarks/replay", "Landmark ingest websocket URL")
	replayCmd.Flags().Float64Var(&replayOpts.FPS, "fps", 30, "Frames per second; 0 sends as fast as possible")
	replayCmd.Flags().BoolVar(&replayOpts.Start, "start", true, "Send a start message before the first frame")

	replayCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(ctx context.Context, opts replayOptions) error {
	total, err := countLines(opts.InputPath)
	if err != nil {
		return err
	}
	f, err := os.Open(opts.InputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	defer conn.Close()

	// Server replies are errors for rejected lines and pongs.
	rejected := make(chan string, 16)
	go func() {
		defer close(rejected)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msg, err := protocol.ParseMessage(data); err == nil && msg.Type == protocol.TypeError {
				select {
				case rejected <- string(msg.Data):
				default:
				}
			}
		}
	}()

	if opts.Start {
		start, err := protocol.NewMessage(protocol.TypeStart, nil)
		if err != nil {
			return err
		}
		if err := writeMessage(conn, start); err != nil {
			return err
		}
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Replaying landmarks"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	var tick <-chan time.Time
	if opts.FPS > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / opts.FPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	sent, skipped := 0, 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := decodeLine(line)
		if err != nil {
			skipped++
			bar.Add(1)
			continue
		}

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := writeMessage(conn, msg); err != nil {
			return fmt.Errorf("send frame %d: %w", sent+1, err)
		}
		sent++
		bar.Add(1)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", opts.InputPath, err)
	}
	bar.Finish()

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	errs := 0
	for range rejected {
		errs++
	}
	fmt.Fprintf(os.Stderr, "\nsent %d messages, skipped %d unreadable lines, %d rejected by server\n", sent, skipped, errs)
	return nil
}

// decodeLine accepts a protocol message or a bare landmarks payload.
func decodeLine(line []byte) (*protocol.Message, error) {
	if msg, err := protocol.ParseMessage(line); err == nil {
		return msg, nil
	}
	var lm protocol.LandmarksData
	if err := json.Unmarshal(line, &lm); err != nil {
		return nil, err
	}
	return protocol.NewMessage(protocol.TypeLandmarks, lm)
}

func writeMessage(conn *websocket.Conn, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	last := byte('\n')
	buf := make([]byte, 64*1024)
	for {
		c, err := f.Read(buf)
		if c > 0 {
			n += bytes.Count(buf[:c], []byte{'\n'})
			last = buf[c-1]
		}
		if err == io.EOF {
			// A final line without a newline still counts.
			if last != '\n' {
				n++
			}
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
