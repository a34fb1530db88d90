package subimage

import (
	"context"
	"image"
	"image/color"
	"testing"
)

// noise fills a deterministic pseudo-random texture so every offset is distinct.
func noise(w, h int, seed uint32) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	s := seed
	for i := range img.Pix {
		s = s*1664525 + 1013904223
		img.Pix[i] = uint8(s >> 24)
	}
	return img
}

func filled(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestSearchZeroBuffers(t *testing.T) {
	s := NewSearcher(DefaultPruneDistance)

	got, err := s.Search(context.Background(), filled(100, 50, 0), filled(10, 10, 0), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Distance != 0 {
		t.Errorf("distance = %f, want 0", got[0].Distance)
	}
}

func TestSearchFindsEmbeddedNeedle(t *testing.T) {
	hay := noise(120, 60, 7)
	needle := image.NewGray(image.Rect(0, 0, 12, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 12; x++ {
			needle.SetGray(x, y, hay.GrayAt(37+x, 12+y))
		}
	}

	got, err := NewSearcher(DefaultPruneDistance).Search(context.Background(), hay, needle, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].X != 37 || got[0].Y != 12 || got[0].Distance != 0 {
		t.Errorf("got %+v, want exact match at (37,12)", got)
	}
}

func TestSearchSubImageNeedle(t *testing.T) {
	hay := noise(60, 40, 3)
	needle := hay.SubImage(image.Rect(20, 10, 30, 18)).(*image.Gray)

	got, err := NewSearcher(0).Search(context.Background(), hay, needle, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].X != 20 || got[0].Y != 10 {
		t.Errorf("got %+v, want (20,10)", got)
	}
}

func TestSearchPrunesDissimilar(t *testing.T) {
	got, err := NewSearcher(DefaultPruneDistance).Search(context.Background(), filled(50, 50, 0), filled(5, 5, 255), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d candidates, want none", len(got))
	}
}

func TestSearchNoPruning(t *testing.T) {
	got, err := NewSearcher(-1).Search(context.Background(), filled(20, 20, 0), filled(5, 5, 255), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Distance != 1 {
		t.Errorf("got %+v, want one candidate at distance 1", got)
	}
}

func TestSearchNeedleTooLarge(t *testing.T) {
	got, err := NewSearcher(DefaultPruneDistance).Search(context.Background(), filled(5, 5, 0), filled(6, 2, 0), 1)
	if err != nil || got != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", got, err)
	}
	got, _ = NewSearcher(DefaultPruneDistance).Search(context.Background(), filled(5, 5, 0), filled(0, 0, 0), 1)
	if got != nil {
		t.Errorf("empty needle got %v, want nil", got)
	}
}

func TestSearchResultsDoNotOverlap(t *testing.T) {
	got, err := NewSearcher(DefaultPruneDistance).Search(context.Background(), filled(100, 50, 0), filled(10, 10, 0), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if abs(got[i].X-got[j].X) < 10 && abs(got[i].Y-got[j].Y) < 10 {
				t.Errorf("candidates %+v and %+v overlap", got[i], got[j])
			}
		}
	}
}

func TestSearchOrdersByDistance(t *testing.T) {
	hay := filled(40, 10, 0)
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			hay.SetGray(x, y, color.Gray{Y: 100})
			hay.SetGray(30+x, y, color.Gray{Y: 90})
		}
	}

	got, err := NewSearcher(-1).Search(context.Background(), hay, filled(5, 5, 100), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].X != 0 || got[1].X != 30 {
		t.Errorf("got %+v, want exact match first then near match at x=30", got)
	}
}

func TestSearchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewSearcher(-1).Search(ctx, filled(50, 50, 0), filled(5, 5, 0), 1); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
