package web

import (
	"bufio"
	"encoding/json"
	"errors"
	"runtime"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-focus/pkg/camera"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/frame"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/session"
)

const (
	errNoFrame     = "No frame data provided"
	errInvalidJSON = "Invalid JSON format"
)

// AnalyzeRequest is the body of POST /analyze-frame and of every text
// message on the /analyze stream. A nil Frame means the field was absent.
type AnalyzeRequest struct {
	Frame     *string `json:"frame"`
	SessionID string `json:"session_id,omitempty"`
}

func errorBody(msg string) fiber.Map {
	return fiber.Map{"success": false, "error": msg}
}

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// decodeMessage strips the sentinel prefix from a frame decoding error and
// capitalizes what remains for the client.
func decodeMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), frame.ErrDecode.Error()+": ")
	if msg == "" {
		return msg
	}
	r, size := utf8.DecodeRuneInString(msg)
	return string(unicode.ToUpper(r)) + msg[size:]
}

// analyze decodes payload and runs it through session id, returning the
// HTTP status that fits the outcome.
func (s *Server) analyze(id string, payload *string, source string) (focus.Result, int, string) {
	if payload == nil {
		return focus.Result{}, fiber.StatusBadRequest, errNoFrame
	}
	f, err := frame.DecodeBase64(*payload)
	if err != nil {
		return focus.Result{}, fiber.StatusBadRequest, decodeMessage(err)
	}

	start := time.Now()
	res, err := s.sessions.Analyze(id, f)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return focus.Result{}, fiber.StatusNotFound, err.Error()
	case err != nil:
		return focus.Result{}, fiber.StatusInternalServerError, "Processing error: " + err.Error()
	}
	if s.metrics != nil {
		s.metrics.ObserveDuration(source, time.Since(start))
		s.metrics.SetSessions(s.sessions.Len())
	}
	return res, fiber.StatusOK, ""
}

// handleRoot describes the service
func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "AI Focus Monitoring API",
		"version": Version,
		"endpoints": fiber.Map{
			"health":  "/health",
			"analyze": "/analyze (WebSocket)",
			"webcam":  "/webcam/stream",
		},
	})
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":              "healthy",
		"monitor_initialized": s.sessions != nil,
		"timestamp":           now(),
	})
}

// handleStats returns the default session's summary
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.sessions.Default().Stats())
}

// handleAnalyzeFrame analyzes one uploaded frame
func (s *Server) handleAnalyzeFrame(c *fiber.Ctx) error {
	var req AnalyzeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody(errInvalidJSON))
	}

	res, status, msg := s.analyze(req.SessionID, req.Frame, "http")
	if status != fiber.StatusOK {
		return c.Status(status).JSON(errorBody(msg))
	}
	return c.JSON(res)
}

// handleAnalyzeWS analyzes every frame sent over the connection and answers
// each with its result. Text messages carry an AnalyzeRequest, binary
// messages a raw encoded image.
func (s *Server) handleAnalyzeWS(c *websocket.Conn) {
	c.SetReadLimit(bodyLimit)
	id := c.Query("session")
	s.log.Info("analyze stream connected", "session", id)
	defer s.log.Info("analyze stream closed", "session", id)

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var out any
		switch mt {
		case websocket.BinaryMessage:
			start := time.Now()
			res, err := s.sessions.AnalyzeBytes(id, msg)
			if err != nil {
				out = errorBody(err.Error())
				break
			}
			if s.metrics != nil {
				s.metrics.ObserveDuration("websocket", time.Since(start))
			}
			out = res
		default:
			var req AnalyzeRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				out = errorBody(errInvalidJSON)
				break
			}
			sid := req.SessionID
			if sid == "" {
				sid = id
			}
			res, status, errMsg := s.analyze(sid, req.Frame, "websocket")
			if status != fiber.StatusOK {
				out = errorBody(errMsg)
				break
			}
			out = res
		}

		if err := c.WriteJSON(out); err != nil {
			s.log.Warn("analyze stream write failed", "session", id, "error", err)
			return
		}
	}
}

// handleResultsWS streams every analyzed result, optionally filtered by
// the session query parameter
func (s *Server) handleResultsWS(c *websocket.Conn) {
	client := hub.NewClient(s.results, c, c.Query("session"))
	client.Run()
}

// handleWebcamStream serves the annotated webcam as MJPEG
func (s *Server) handleWebcamStream(c *fiber.Ctx) error {
	if s.webcam == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorBody("webcam stream is disabled"))
	}

	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary=frame")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "close")

	ctx := s.ctx
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		err := s.webcam.Stream(ctx, func(jpeg []byte) error {
			if _, err := w.WriteString("--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
				return err
			}
			if _, err := w.Write(jpeg); err != nil {
				return err
			}
			if _, err := w.WriteString("\r\n"); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil && ctx.Err() == nil {
			s.log.Warn("webcam stream ended", "error", err)
		}
	})
	return nil
}

// handleListSessions lists live sessions
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(s.sessions.List())
}

// handleCreateSession starts a session with a fresh engine
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess := s.sessions.Create()
	if s.metrics != nil {
		s.metrics.SetSessions(s.sessions.Len())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": sess.ID,
		"created":    sess.Created,
	})
}

// handleSessionStats returns one session's summary
func (s *Server) handleSessionStats(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorBody(err.Error()))
	}
	return c.JSON(sess.Stats())
}

// handleDeleteSession ends a session
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.sessions.Delete(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorBody(err.Error()))
	}
	if s.metrics != nil {
		s.metrics.SetSessions(s.sessions.Len())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleGetCameraConfig returns the webcam configuration and its options
func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"config":       s.cameras.Config(),
		"capabilities": camera.Capabilities(runtime.GOOS),
	})
}

// handleSetCameraConfig applies a partial update or a preset. The next
// stream opens the camera with it.
func (s *Server) handleSetCameraConfig(c *fiber.Ctx) error {
	var params map[string]any
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody(errInvalidJSON))
	}
	cfg, err := s.cameras.Update(params)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody(err.Error()))
	}
	return c.JSON(fiber.Map{"success": true, "config": cfg})
}
