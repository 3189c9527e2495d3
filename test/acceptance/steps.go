package acceptance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/CanopyHQ/loreweave/internal/memory"
)

// TestContext holds the state a scenario accumulates between steps. A fresh
// one is created per scenario by InitializeScenario's Before hook.
type TestContext struct {
	ctx context.Context

	dir       string
	cfg       memory.Config
	coord     *memory.Coordinator
	character string

	firstMemoryID string
	searchResults []memory.Scored
	updateLoc     memory.Location
	clearResult   *memory.ClearResult

	rememberedIDs      map[string][]string
	rememberedContents map[string][]string
}

func (tc *TestContext) ensureCoordinator() error {
	if tc.coord != nil {
		return nil
	}
	coord, err := memory.New(tc.cfg)
	if err != nil {
		return fmt.Errorf("open coordinator: %w", err)
	}
	tc.coord = coord
	return nil
}

func (tc *TestContext) characterNamed(name string) error {
	tc.character = name
	dir, err := os.MkdirTemp("", "loreweave-acceptance-*")
	if err != nil {
		return err
	}
	tc.dir = dir
	tc.cfg = memory.Config{
		RecentCapacity:     5,
		BufferThreshold:    10,
		DefaultSearchK:     3,
		EmbeddingBackend:   "cpu",
		PreloadEmbeddings:  false,
		MaxEmbedBatch:      50,
		RecentSnapshotPath: filepath.Join(dir, "recent.json"),
		BufferDir:          filepath.Join(dir, "buffer"),
		VectorStoreDir:     filepath.Join(dir, "vectors"),
	}
	return nil
}

func (tc *TestContext) setRecentCapacity(n int) error {
	tc.cfg.RecentCapacity = n
	return nil
}

func (tc *TestContext) setBufferThreshold(n int) error {
	tc.cfg.BufferThreshold = n
	return nil
}

func (tc *TestContext) rememberN(count int, character string) error {
	if err := tc.ensureCoordinator(); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		content := fmt.Sprintf("memory %d", i)
		result, err := tc.coord.Add(tc.ctx, character, content, nil)
		if err != nil {
			return err
		}
		if i == 0 && tc.firstMemoryID == "" {
			tc.firstMemoryID = result.ID
		}
		tc.recordRemembered(character, result.ID, content)
	}
	return nil
}

func (tc *TestContext) rememberNAbout(count int, topic, character string) error {
	if err := tc.ensureCoordinator(); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		content := fmt.Sprintf("%s memory %d about %s", character, i, topic)
		result, err := tc.coord.Add(tc.ctx, character, content, nil)
		if err != nil {
			return err
		}
		tc.recordRemembered(character, result.ID, content)
	}
	return nil
}

func (tc *TestContext) rememberOne(content, character string) error {
	if err := tc.ensureCoordinator(); err != nil {
		return err
	}
	result, err := tc.coord.Add(tc.ctx, character, content, nil)
	if err != nil {
		return err
	}
	if tc.firstMemoryID == "" {
		tc.firstMemoryID = result.ID
	}
	tc.recordRemembered(character, result.ID, content)
	return nil
}

func (tc *TestContext) recordRemembered(character, id, content string) {
	if tc.rememberedIDs == nil {
		tc.rememberedIDs = make(map[string][]string)
	}
	if tc.rememberedContents == nil {
		tc.rememberedContents = make(map[string][]string)
	}
	tc.rememberedIDs[character] = append(tc.rememberedIDs[character], id)
	tc.rememberedContents[character] = append(tc.rememberedContents[character], content)
}

// searchFirstTenStillFound picks an entry from among the first ten memories
// remembered for character — index 3, which under this feature's R=5/B=7
// configuration is guaranteed to have crossed into the buffer and been
// auto-embedded before a restart — and asserts a search for its own content
// still surfaces it as the top hit.
func (tc *TestContext) searchFirstTenStillFound(character string) error {
	const probeIndex = 3
	contents := tc.rememberedContents[character]
	ids := tc.rememberedIDs[character]
	if len(contents) <= probeIndex || len(ids) <= probeIndex {
		return fmt.Errorf("not enough remembered memories for %q to probe index %d", character, probeIndex)
	}

	results, err := tc.coord.Search(tc.ctx, character, contents[probeIndex], 5)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("search for %q returned no results", character)
	}
	if results[0].Entry.ID != ids[probeIndex] {
		return fmt.Errorf("expected top search result %q, got %q", ids[probeIndex], results[0].Entry.ID)
	}
	return nil
}

func (tc *TestContext) recentTierHoldsExactly(character string, n int) error {
	got := tc.coord.GetRecent(tc.ctx, character)
	if len(got) != n {
		return fmt.Errorf("expected %d recent memories for %s, got %d", n, character, len(got))
	}
	return nil
}

func (tc *TestContext) oldestMovedToBuffer() error {
	exported, err := tc.coord.Export(tc.ctx, tc.character)
	if err != nil {
		return err
	}
	for _, wl := range exported {
		if wl.Entry.ID == tc.firstMemoryID && wl.Location == memory.LocationBuffer {
			return nil
		}
	}
	return fmt.Errorf("expected memory %s to be in the buffer tier", tc.firstMemoryID)
}

func (tc *TestContext) bufferTierEmpty(character string) error {
	return tc.countInLocation(character, memory.LocationBuffer, 0)
}

func (tc *TestContext) longtermHolds(character string, n int) error {
	return tc.countInLocation(character, memory.LocationLongterm, n)
}

func (tc *TestContext) countInLocation(character string, loc memory.Location, want int) error {
	exported, err := tc.coord.Export(tc.ctx, character)
	if err != nil {
		return err
	}
	got := 0
	for _, wl := range exported {
		if wl.Location == loc {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("expected %d entries in %s for %s, got %d", want, loc, character, got)
	}
	return nil
}

func (tc *TestContext) searchFor(character, query string) error {
	results, err := tc.coord.Search(tc.ctx, character, query, 3)
	if err != nil {
		return err
	}
	tc.searchResults = results
	return nil
}

func (tc *TestContext) topResultMentions(substr string) error {
	if len(tc.searchResults) == 0 {
		return fmt.Errorf("no search results recorded")
	}
	if !strings.Contains(tc.searchResults[0].Entry.Content, substr) {
		return fmt.Errorf("top search result %q does not mention %q", tc.searchResults[0].Entry.Content, substr)
	}
	return nil
}

func (tc *TestContext) clearCharacter(character string) error {
	result, err := tc.coord.Clear(tc.ctx, character)
	if err != nil {
		return err
	}
	tc.clearResult = result
	return nil
}

func (tc *TestContext) characterNotListed(character string) error {
	summaries, err := tc.coord.ListCharacters(tc.ctx)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		if s.Character == character {
			return fmt.Errorf("expected %s to be absent from the listing", character)
		}
	}
	return nil
}

func (tc *TestContext) updateFirstMemory(newContent, character string) error {
	loc, err := tc.coord.Update(tc.ctx, character, tc.firstMemoryID, newContent, nil)
	if err != nil {
		return err
	}
	tc.updateLoc = loc
	return nil
}

func (tc *TestContext) updateFoundInLongterm() error {
	if tc.updateLoc != memory.LocationLongterm {
		return fmt.Errorf("expected update to report %s, got %s", memory.LocationLongterm, tc.updateLoc)
	}
	return nil
}

func (tc *TestContext) longtermContains(character, content string) error {
	all, err := tc.coord.Export(tc.ctx, character)
	if err != nil {
		return err
	}
	for _, wl := range all {
		if wl.Location == memory.LocationLongterm && wl.Entry.Content == content {
			return nil
		}
	}
	return fmt.Errorf("expected long-term storage to contain %q", content)
}

func (tc *TestContext) serviceRestarts() error {
	if err := tc.coord.Close(); err != nil {
		return err
	}
	coord, err := memory.New(tc.cfg)
	if err != nil {
		return err
	}
	tc.coord = coord
	return nil
}

func (tc *TestContext) recentContainsInOrder(character, first, second string) error {
	got := tc.coord.GetRecent(tc.ctx, character)
	if len(got) != 2 {
		return fmt.Errorf("expected exactly 2 recent memories, got %d", len(got))
	}
	if got[0].Content != first || got[1].Content != second {
		return fmt.Errorf("expected [%q, %q], got [%q, %q]", first, second, got[0].Content, got[1].Content)
	}
	return nil
}

// InitializeScenario registers step definitions and resets state per scenario.
func InitializeScenario(sc *godog.ScenarioContext) {
	var tc *TestContext

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		tc = &TestContext{ctx: context.Background()}
		return ctx, nil
	})

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if tc.coord != nil {
			tc.coord.Close()
		}
		if tc.dir != "" {
			os.RemoveAll(tc.dir)
		}
		return ctx, nil
	})

	sc.Step(`^a character named "([^"]*)"$`, func(name string) error { return tc.characterNamed(name) })
	sc.Step(`^the recent tier holds at most (\d+) memories?$`, func(n int) error { return tc.setRecentCapacity(n) })
	sc.Step(`^the buffer tier embeds at (\d+) memories?$`, func(n int) error { return tc.setBufferThreshold(n) })
	sc.Step(`^I remember (\d+) memories for "([^"]*)"$`, func(n int, character string) error { return tc.rememberN(n, character) })
	sc.Step(`^I remember (\d+) memories about "([^"]*)" for "([^"]*)"$`, func(n int, topic, character string) error {
		return tc.rememberNAbout(n, topic, character)
	})
	sc.Step(`^a search on "([^"]*)" for one of the first 10 memories should still find it$`, func(character string) error {
		return tc.searchFirstTenStillFound(character)
	})
	sc.Step(`^I remember one more memory "([^"]*)" for "([^"]*)"$`, func(content, character string) error { return tc.rememberOne(content, character) })
	sc.Step(`^I remember "([^"]*)" for "([^"]*)"$`, func(content, character string) error { return tc.rememberOne(content, character) })
	sc.Step(`^the recent tier for "([^"]*)" should hold exactly (\d+) memories$`, func(character string, n int) error { return tc.recentTierHoldsExactly(character, n) })
	sc.Step(`^the oldest memory should have moved to the buffer tier$`, func() error { return tc.oldestMovedToBuffer() })
	sc.Step(`^the buffer tier for "([^"]*)" should be empty$`, func(character string) error { return tc.bufferTierEmpty(character) })
	sc.Step(`^the long-term index for "([^"]*)" should hold (\d+) memories$`, func(character string, n int) error { return tc.longtermHolds(character, n) })
	sc.Step(`^I search "([^"]*)" for "([^"]*)"$`, func(character, query string) error { return tc.searchFor(character, query) })
	sc.Step(`^the top search result should mention "([^"]*)"$`, func(substr string) error { return tc.topResultMentions(substr) })
	sc.Step(`^I clear "([^"]*)"$`, func(character string) error { return tc.clearCharacter(character) })
	sc.Step(`^"([^"]*)" should not appear in the character listing$`, func(character string) error { return tc.characterNotListed(character) })
	sc.Step(`^I update that first memory to "([^"]*)" for "([^"]*)"$`, func(content, character string) error { return tc.updateFirstMemory(content, character) })
	sc.Step(`^the update should report the memory was found in the long-term index$`, func() error { return tc.updateFoundInLongterm() })
	sc.Step(`^the long-term index for "([^"]*)" should contain "([^"]*)"$`, func(character, content string) error { return tc.longtermContains(character, content) })
	sc.Step(`^the memory service restarts$`, func() error { return tc.serviceRestarts() })
	sc.Step(`^the recent tier for "([^"]*)" should contain "([^"]*)" then "([^"]*)"$`, func(character, first, second string) error {
		return tc.recentContainsInOrder(character, first, second)
	})
}
