package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	priceInterval = time.Second
	writeWait     = 5 * time.Second
)

// priceTick is one websocket frame on the price stream.
type priceTick struct {
	Auction   string    `json:"auction"`
	Asset     string    `json:"asset,omitempty"`
	Amount    uint64    `json:"amount"`
	Price     uint64    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// streamPrice pushes the current curve price for one unit every second
// until the client goes away or the quote becomes unusable. Auth rides
// in the token query parameter since browsers cannot set headers on
// websocket upgrades.
func (g *Gateway) streamPrice(c *gin.Context) {
	if _, err := g.verifyToken(c.Query("token")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	name := c.Param("name")
	asset := c.Query("asset")

	a, err := g.engine.GetAuction(name)
	if err != nil {
		fail(c, err)
		return
	}
	amount := uint64(1)
	for _, d := range a.Dispensers {
		if asset == "" || d.Asset == asset {
			// One whole token in base units.
			for i := uint8(0); i < d.Decimals; i++ {
				amount *= 10
			}
			break
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Drain control frames so pings and close are handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(priceInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		price, err := g.engine.GetAuctionPrice(ctx, name, asset, amount)
		if err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
				time.Now().Add(writeWait))
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(priceTick{
			Auction:   name,
			Asset:     asset,
			Amount:    amount,
			Price:     price,
			Timestamp: time.Now(),
		}); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
