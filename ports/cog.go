package ports

import "context"

// COGValidator checks that a sample file URL points at a usable
// Cloud-Optimized GeoTIFF. true means reachable and valid.
type COGValidator interface {
	ValidateCOGURL(ctx context.Context, url string) (bool, error)
}
