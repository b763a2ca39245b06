package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/kitchen-buddy/pkg/protocol"
)

var (
	talkURL     string
	talkOutput  string
	talkChunk   int
	talkTimeout time.Duration
)

var talkCmd = &cobra.Command{
	Use:   "talk <audio-file>",
	Short: "Send a recorded utterance to a running server",
	Long: `Stream an audio file to a kitchen-buddy server as one segment.

The file is sent as binary frames followed by end_speech. Transcript and reply
text are printed, and the synthesized reply is written to --output.

Examples:
  kitchen-buddy talk question.webm
  kitchen-buddy talk question.webm -o reply.wav --url ws://kitchen:3001/ws`,
	Args: cobra.ExactArgs(1),
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().StringVar(&talkURL, "url", "ws://localhost:3001/ws", "server WebSocket URL")
	talkCmd.Flags().StringVarP(&talkOutput, "output", "o", "reply.wav", "where to save the reply audio")
	talkCmd.Flags().IntVar(&talkChunk, "chunk", 32<<10, "bytes per binary frame")
	talkCmd.Flags().DurationVar(&talkTimeout, "timeout", 2*time.Minute, "how long to wait for the reply")
}

func runTalk(cmd *cobra.Command, args []string) error {
	audio, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return fmt.Errorf("audio file %s is empty", args[0])
	}
	if talkChunk <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), talkURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", talkURL, err)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	deadline := time.Now().Add(talkTimeout)
	conn.SetReadDeadline(deadline)

	msg, err := readEvent(conn)
	if err != nil {
		return err
	}
	if msg.Type != protocol.TypeReady {
		return fmt.Errorf("expected ready, got %q", msg.Type)
	}
	fmt.Fprintf(out, "session %s\n", msg.Session)

	for off := 0; off < len(audio); off += talkChunk {
		end := min(off+talkChunk, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[off:end]); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}
	if err := writeControl(conn, protocol.NewEndSpeech()); err != nil {
		return err
	}
	fmt.Fprintf(out, "sent %d bytes\n", len(audio))

	replied := false
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if typ == websocket.BinaryMessage {
			if err := saveToFile(talkOutput, data); err != nil {
				return err
			}
			fmt.Fprintf(out, "audio  %s (%d bytes)\n", talkOutput, len(data))
			break
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			return err
		}
		switch msg.Type {
		case protocol.TypeTranscript:
			fmt.Fprintf(out, "you    %s\n", msg.Text)
		case protocol.TypeLLM:
			fmt.Fprintf(out, "buddy  %s\n", msg.Text)
			replied = true
		case protocol.TypeError:
			fmt.Fprintf(out, "error  %s\n", msg.Error)
			if !replied {
				return fmt.Errorf("turn failed: %s", msg.Error)
			}
			// Reply text arrived but synthesis failed.
			return writeStop(conn)
		}
	}

	return writeStop(conn)
}

func readEvent(conn *websocket.Conn) (*protocol.Message, error) {
	typ, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if typ != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected binary frame")
	}
	return protocol.ParseMessage(data)
}

func writeControl(conn *websocket.Conn, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

func writeStop(conn *websocket.Conn) error {
	if err := writeControl(conn, protocol.NewStop()); err != nil {
		return err
	}
	// Wait for the server's close frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return nil
		}
	}
}

// saveToFile saves data to a file
func saveToFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
