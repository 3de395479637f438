// audioclient streams a WAV file over the transcription websocket and
// prints every transcript and moderation message the gateway sends
// back. Useful for exercising a running gateway end to end.
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time capture.
// At 16kHz 16-bit mono = 32000 bytes/second, so 100ms chunks = 3200 bytes.
const chunkSize = 3200
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverURL := flag.String("server", "ws://localhost:8000/ws/transcribe", "Websocket endpoint")
	sessionId := flag.String("session", "client-"+time.Now().Format("150405"), "Session ID")
	model := flag.String("model", "", "Model override (empty keeps the server default)")
	moderation := flag.Bool("moderation", true, "Request toxicity moderation")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", sampleRate)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverURL)

	// Print everything the gateway sends until the connection closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("<- %s", data)
				continue
			}
			switch msg["type"] {
			case "moderation":
				log.Printf("<- moderation: label=%v flagged=%v keywords=%v",
					msg["label"], msg["is_flagged"], msg["detected_keywords"])
			default:
				log.Printf("<- transcript: final=%v text=%q", msg["is_final"], msg["text"])
			}
		}
	}()

	sendJSON := func(v any) {
		if err := conn.WriteJSON(v); err != nil {
			log.Fatalf("Failed to send control message: %v", err)
		}
	}

	cfgMsg := map[string]any{"type": "config", "moderation": *moderation}
	if *model != "" {
		cfgMsg["model"] = *model
	}
	sendJSON(cfgMsg)
	sendJSON(map[string]any{"type": "start_session", "sessionId": *sessionId})

	log.Printf("Streaming audio: sessionId=%s", *sessionId)

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		if err := conn.WriteMessage(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send chunk: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		// Simulate real-time capture pacing
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	elapsed := time.Since(startTime)
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, elapsed)

	// Force a final transcript for any buffered tail, then give the
	// gateway a moment to deliver results before hanging up.
	sendJSON(map[string]any{"type": "flush"})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	log.Printf("Session completed: sessionId=%s", *sessionId)
}
