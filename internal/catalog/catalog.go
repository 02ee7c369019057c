package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bulbrelay/bulb-relay-core/internal/transport"
)

// StatusPath is the catalog query path. Commands to this path are exempt
// from dispatch rate pacing.
const StatusPath = "/bulbs"

// Bulb is one bulb as reported by a controller's catalog.
//
// Name is the unique key users address bulbs by; it must not collide
// within one controller. Address is the hardware (BLE) address and is
// informational only. ID is the controller's slot index for the bulb.
type Bulb struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
}

// catalogResponse is the wire shape of a /bulbs reply. Count is advisory;
// the list length is authoritative.
type catalogResponse struct {
	Bulbs *[]Bulb `json:"bulbs"`
	Count int     `json:"count"`
}

// Query sends the catalog path over the given transport and parses the
// reply.
//
// Parameters:
//   - ctx: Bounds the round-trip
//   - tr: Channel to the controller
//
// Returns:
//   - []Bulb: Bulbs the controller currently serves, possibly empty
//   - error: Transport errors pass through unchanged; a reply without a
//     bulbs list fails wrapping transport.ErrParse
func Query(ctx context.Context, tr transport.Transport) ([]Bulb, error) {
	body, err := tr.Send(ctx, StatusPath)
	if err != nil {
		return nil, err
	}

	var resp catalogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: catalog from %s: %w", transport.ErrParse, tr.Address(), err)
	}
	if resp.Bulbs == nil {
		return nil, fmt.Errorf("%w: catalog from %s missing bulbs list", transport.ErrParse, tr.Address())
	}

	return *resp.Bulbs, nil
}
