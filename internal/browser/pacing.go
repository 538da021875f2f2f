package browser

import (
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// RandomDelay sleeps for a random duration between min and max milliseconds.
func RandomDelay(minMs, maxMs int) {
	d := rand.Intn(maxMs-minMs+1) + minMs
	time.Sleep(time.Duration(d) * time.Millisecond)
}

// HumanScroll scrolls the page down in irregular steps. Listing containers
// on the results page lazy-load cards as they enter the viewport.
func HumanScroll(page playwright.Page) error {
	for i := 0; i < 5; i++ {
		if _, err := page.Evaluate("window.scrollBy(0, window.innerHeight / 2)"); err != nil {
			return err
		}
		RandomDelay(400, 1200)
	}

	_, err := page.Evaluate("window.scrollBy(0, -200)")
	return err
}

// MouseJiggle moves the mouse to a few random positions to avoid idle
// detection.
func MouseJiggle(page playwright.Page) error {
	size := page.ViewportSize()
	if size == nil {
		return nil
	}

	for i := 0; i < 3; i++ {
		x := rand.Intn(size.Width)
		y := rand.Intn(size.Height)
		if err := page.Mouse().Move(float64(x), float64(y)); err != nil {
			return err
		}
		RandomDelay(100, 300)
	}
	return nil
}
