package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	"github.com/BrickBench/AutoMarathon/internal/lock"
	"github.com/BrickBench/AutoMarathon/internal/slashcmd"
	"github.com/BrickBench/AutoMarathon/pkg/response"
)

// idBody is the {id} request shape shared by delete and refresh calls.
type idBody struct {
	ID int64 `json:"id"`
}

type setStreamingBody struct {
	Host      string `json:"host"`
	Streaming bool   `json:"streaming"`
}

type setVolumeBody struct {
	User   string `json:"user"`
	Volume int    `json:"volume"`
}

type customFieldBody struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type sessionBody struct {
	Secret string `json:"secret"`
	Name   string `json:"name"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvariant), errors.Is(err, domain.ErrInUse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotLockHolder):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	response.Error(c, statusFor(err), domain.Kind(err), err.Error())
}

// apply runs a mutation, enforcing the editor-lock check on
// layout-affecting mutations, and writes the standard response.
func (g *Gateway) apply(c *gin.Context, m hub.Mutation, pick func(domain.AMState) any) {
	ctx := c.Request.Context()

	if hub.LayoutAffecting(m) {
		snap, err := g.hub.Snapshot(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		if !lock.HolderMayMutate(snap.Lock, sessionName(c), g.clock()) {
			response.Error(c, http.StatusForbidden, domain.ErrNotLockHolder.Error(),
				"layout mutations require the dashboard editor lock")
			return
		}
	}

	snap, err := g.hub.Apply(ctx, m)
	if err != nil {
		fail(c, err)
		return
	}
	if pick == nil {
		response.Success(c, nil)
		return
	}
	response.Success(c, pick(snap))
}

func (g *Gateway) createSession(c *gin.Context) {
	var body sessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, err := g.sessions.Issue(body.Secret, body.Name)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"token": token})
}

func (g *Gateway) createPerson(c *gin.Context) {
	var p domain.Person
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.CreatePerson{Person: p}, func(s domain.AMState) any {
		// The new person carries the highest id.
		var latest domain.Person
		for _, cand := range s.People {
			if cand.ID >= latest.ID {
				latest = cand
			}
		}
		return latest
	})
}

func (g *Gateway) updatePerson(c *gin.Context) {
	var p domain.Person
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.UpdatePerson{Person: p}, func(s domain.AMState) any {
		return s.People[p.ID]
	})
}

func (g *Gateway) deletePerson(c *gin.Context) {
	var body idBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.DeletePerson{ID: body.ID}, nil)
}

func (g *Gateway) createRunner(c *gin.Context) {
	var r domain.Runner
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.CreateRunner{Runner: r}, func(s domain.AMState) any {
		return s.Runners[r.Participant]
	})
}

func (g *Gateway) updateRunner(c *gin.Context) {
	var r domain.Runner
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.UpdateRunner{Runner: r}, func(s domain.AMState) any {
		return s.Runners[r.Participant]
	})
}

func (g *Gateway) deleteRunner(c *gin.Context) {
	var body idBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.DeleteRunner{ID: body.ID}, nil)
}

func (g *Gateway) refreshRunner(c *gin.Context) {
	var body idBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.RefreshRunnerURLs{ID: body.ID}, nil)
}

func (g *Gateway) createEvent(c *gin.Context) {
	var e domain.Event
	if err := c.ShouldBindJSON(&e); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.CreateEvent{Event: e}, func(s domain.AMState) any {
		var latest domain.Event
		for _, cand := range s.Events {
			if cand.ID >= latest.ID {
				latest = cand
			}
		}
		return latest
	})
}

func (g *Gateway) updateEvent(c *gin.Context) {
	var e domain.Event
	if err := c.ShouldBindJSON(&e); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.UpdateEvent{Event: e}, func(s domain.AMState) any {
		return s.Events[e.ID]
	})
}

func (g *Gateway) deleteEvent(c *gin.Context) {
	var body idBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.DeleteEvent{ID: body.ID}, nil)
}

// getEvent looks an event up by id or by the host currently streaming it.
func (g *Gateway) getEvent(c *gin.Context) {
	snap, err := g.hub.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	if idArg := c.Query("id"); idArg != "" {
		id, err := strconv.ParseInt(idArg, 10, 64)
		if err != nil {
			response.BadRequest(c, "failed to parse event id")
			return
		}
		if ev, ok := snap.Events[id]; ok {
			response.Success(c, ev)
			return
		}
		response.NotFound(c, "failed to find event by id")
		return
	}

	if host := c.Query("host"); host != "" {
		if st, ok := snap.StreamForHost(host); ok {
			if ev, ok := snap.Events[st.Event]; ok {
				response.Success(c, ev)
				return
			}
		}
		response.NotFound(c, "provided host is not currently running an event")
		return
	}

	response.BadRequest(c, "missing 'id' or 'host' parameter")
}

func (g *Gateway) createStream(c *gin.Context) {
	var st domain.Stream
	if err := c.ShouldBindJSON(&st); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.CreateStream{Stream: st}, func(s domain.AMState) any {
		return s.Streams[st.Event]
	})
}

func (g *Gateway) updateStream(c *gin.Context) {
	var st domain.Stream
	if err := c.ShouldBindJSON(&st); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.UpdateStream{Stream: st}, func(s domain.AMState) any {
		return s.Streams[st.Event]
	})
}

func (g *Gateway) deleteStream(c *gin.Context) {
	var body idBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.DeleteStream{Event: body.ID}, nil)
}

func (g *Gateway) setStreaming(c *gin.Context) {
	var body setStreamingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.SetStreaming{Host: body.Host, Streaming: body.Streaming}, nil)
}

func (g *Gateway) setVoiceVolume(c *gin.Context) {
	var body setVolumeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if body.Volume < 0 || body.Volume > 200 {
		response.BadRequest(c, "volume out of range")
		return
	}
	g.apply(c, hub.SetVoiceGain{User: body.User, Gain: body.Volume}, nil)
}

// runCommand is the webhook entry for the external bot transport: the
// slash-command text arrives over an already-authenticated session.
func (g *Gateway) runCommand(c *gin.Context) {
	var body struct {
		Author string `json:"author"`
		Text   string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	reply := g.cmds.Execute(c.Request.Context(), slashcmd.Command{
		Author: body.Author,
		Text:   body.Text,
	})
	response.Success(c, gin.H{"reply": reply})
}

func (g *Gateway) setCustomField(c *gin.Context) {
	var body customFieldBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	g.apply(c, hub.SetCustomField{Key: body.Key, Value: body.Value}, func(s domain.AMState) any {
		return s.CustomFields
	})
}
