package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/optrade/broadcast"
	"github.com/rustyeddy/optrade/engine"
	"github.com/rustyeddy/optrade/market"
	"github.com/rustyeddy/optrade/positions"
	"github.com/rustyeddy/optrade/registry"
)

// searchLimit caps catalog search responses; the NFO dump runs to tens of
// thousands of contracts.
const searchLimit = 50

func (s *Server) listAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Accounts.List())
}

func (s *Server) addAccount(c *gin.Context) {
	var acc registry.Account
	if err := c.ShouldBindJSON(&acc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.Accounts.Append(acc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.cfg.Accounts.List())
}

func (s *Server) replaceAccounts(c *gin.Context) {
	var accounts []registry.Account
	if err := c.ShouldBindJSON(&accounts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.Accounts.Replace(accounts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.cfg.Accounts.List())
}

func (s *Server) searchInstruments(c *gin.Context) {
	q := c.Query("q")
	if len(q) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must be at least 2 characters"})
		return
	}
	matches := s.cfg.Catalog.Search(q)
	if len(matches) > searchLimit {
		matches = matches[:searchLimit]
	}
	c.JSON(http.StatusOK, matches)
}

type tokenRequest struct {
	Token market.Token `json:"token" binding:"required"`
}

func (s *Server) selectInstrument(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inst, ok := s.cfg.Catalog.FindByToken(req.Token)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "instrument not found in catalog"})
		return
	}

	added, err := s.cfg.Selected.Add(inst)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if added && s.cfg.Feed != nil {
		if err := s.cfg.Feed.Subscribe(inst.Token); err != nil {
			s.logger.Warn("subscribe failed", "token", uint32(inst.Token), "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"instrument": inst, "added": added})
}

func (s *Server) listSelected(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Selected.List())
}

func (s *Server) replaceSelected(c *gin.Context) {
	var instruments []market.Instrument
	if err := c.ShouldBindJSON(&instruments); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.Selected.Replace(instruments); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.cfg.Feed != nil {
		tokens := make([]market.Token, 0, len(instruments))
		for _, inst := range instruments {
			tokens = append(tokens, inst.Token)
		}
		if err := s.cfg.Feed.Subscribe(tokens...); err != nil {
			s.logger.Warn("subscribe failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, s.cfg.Selected.List())
}

func (s *Server) resubscribe(c *gin.Context) {
	if s.cfg.Feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price feed is disabled"})
		return
	}
	n, err := s.cfg.Feed.Resubscribe()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resubscribed": n})
}

type buyRequest struct {
	Token      market.Token `json:"token" binding:"required"`
	StopLoss   float64      `json:"stoploss"`
	TakeProfit float64      `json:"takeprofit"`
}

func (s *Server) buy(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.cfg.Engine.Buy(c.Request.Context(), req.Token, req.StopLoss, req.TakeProfit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrUnknownInstrument) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) sell(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.cfg.Engine.Sell(c.Request.Context(), req.Token)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrUnknownInstrument) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"execution_mode": string(s.cfg.Engine.Mode())})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := engine.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cfg.Engine.SetMode(mode)
	if err := s.cfg.Settings.SetExecutionMode(string(mode)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cfg.Hub.Publish(broadcast.EventMode, gin.H{"execution_mode": string(mode)})
	c.JSON(http.StatusOK, gin.H{"execution_mode": string(mode)})
}

// instrumentState is one selected instrument merged with its last price and
// per-account positions, the shape dashboards render from.
type instrumentState struct {
	Instrument market.Instrument             `json:"instrument"`
	LTP        float64                       `json:"ltp"`
	Positions  map[string]positions.Position `json:"positions"`
}

func (s *Server) state() []instrumentState {
	selected := s.cfg.Selected.List()
	out := make([]instrumentState, 0, len(selected))
	for _, inst := range selected {
		out = append(out, instrumentState{
			Instrument: inst,
			LTP:        s.cfg.Ticks.Last(inst.Token),
			Positions:  s.cfg.Book.Get(inst.Token),
		})
	}
	return out
}

func (s *Server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.state())
}

func (s *Server) listTrades(c *gin.Context) {
	trades, err := s.cfg.Journal.ListTrades()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

// serveWS upgrades the connection and hands it to the hub, seeding the client
// with the current state and mode before live events flow.
func (s *Server) serveWS(c *gin.Context) {
	snapshot := []broadcast.Event{
		{Type: broadcast.EventState, Data: s.state()},
		{Type: broadcast.EventMode, Data: gin.H{"execution_mode": string(s.cfg.Engine.Mode())}},
	}
	if err := s.cfg.Hub.Handle(c.Writer, c.Request, snapshot); err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
	}
}
