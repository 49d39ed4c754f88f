package runtime

import (
	"context"
	"time"
)

// Reachability reports whether one device could be reached through its master.
type Reachability struct {
	Master  string
	Device  string
	UnitID  uint8
	Address string
	Err     error
}

// Reach opens a client for every device of every master and closes it again.
// A zero timeout keeps the timeout configured on each master. Reaching stops
// early when ctx is cancelled; the results gathered so far are returned.
func (a *App) Reach(ctx context.Context, timeout time.Duration) ([]Reachability, error) {
	var results []Reachability
	for _, m := range a.Masters() {
		if timeout > 0 {
			m.SetTimeout(timeout)
		}
		for _, dev := range m.Devices() {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			result := Reachability{Master: m.ID(), Device: dev.ID(), UnitID: dev.Address(), Address: m.Address()}
			client, err := m.Client(dev)
			if err == nil && client != nil {
				err = client.Close()
			}
			result.Err = err
			if err != nil {
				a.logger.Warn().Err(err).Str("master", result.Master).Str("device", result.Device).
					Str("client", result.Address).Uint8("unit_id", result.UnitID).Msg("device unreachable")
			} else {
				a.logger.Info().Str("master", result.Master).Str("device", result.Device).
					Str("client", result.Address).Uint8("unit_id", result.UnitID).Msg("device reachable")
			}
			results = append(results, result)
		}
	}
	return results, nil
}
