package crossboot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// PatchSet is the ordered list of patches for one component.
type PatchSet struct {
	// Primary enables the platform and is applied before everything else.
	Primary string
	Others  []string
}

// Ordered returns the primary patch followed by the rest in sorted order.
func (s PatchSet) Ordered() []string {
	others := slices.Clone(s.Others)
	slices.SortFunc(others, func(a, b string) int {
		return strings.Compare(filepath.Base(a), filepath.Base(b))
	})
	if s.Primary == "" {
		return others
	}
	return append([]string{s.Primary}, others...)
}

func (s PatchSet) Len() int {
	n := len(s.Others)
	if s.Primary != "" {
		n++
	}
	return n
}

// DiscoverPatches collects <dir>/<component>/*.patch. primaryName is a
// format string receiving the component name. A missing directory is an
// empty set.
func DiscoverPatches(dir string, c Component, primaryName string) (PatchSet, error) {
	var set PatchSet
	if dir == "" {
		return set, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, c.String(), "*.patch"))
	if err != nil {
		return set, err
	}
	primary := ""
	if primaryName != "" {
		primary = fmt.Sprintf(primaryName, c)
	}
	for _, m := range matches {
		if filepath.Base(m) == primary {
			set.Primary = m
			continue
		}
		set.Others = append(set.Others, m)
	}
	return set, nil
}

// PatchApplier applies patches with patch(1) through the executor and
// remembers them in a marker file inside the tree.
type PatchApplier struct {
	Exec BuildExecutor
}

func readPatchMarker(dir string) (map[string]bool, error) {
	applied := make(map[string]bool)
	f, err := os.Open(filepath.Join(dir, patchMarkerName))
	if os.IsNotExist(err) {
		return applied, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			applied[line] = true
		}
	}
	return applied, scanner.Err()
}

func appendPatchMarker(dir, name string) error {
	f, err := os.OpenFile(filepath.Join(dir, patchMarkerName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, name); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Applied reports whether every patch of set is recorded in the tree.
func Applied(tree SourceTree, set PatchSet) bool {
	applied, err := readPatchMarker(tree.Dir)
	if err != nil {
		return false
	}
	for _, p := range set.Ordered() {
		if !applied[filepath.Base(p)] {
			return false
		}
	}
	return true
}

// Apply applies the patches of set that are not yet in tree and returns how
// many it applied. Patches that do not apply are joined into the returned
// error as *PatchConflict values and do not stop the remaining patches; any
// other error is returned alone.
func (a *PatchApplier) Apply(ctx context.Context, tree SourceTree, set PatchSet, strip int) (int, error) {
	applied, err := readPatchMarker(tree.Dir)
	if err != nil {
		return 0, fmt.Errorf("read patch marker in %s: %w", tree.Dir, err)
	}

	p := fmt.Sprintf("-p%d", strip)
	count := 0
	var conflicts []error
	for _, patch := range set.Ordered() {
		name := filepath.Base(patch)
		if applied[name] {
			debugf("=> %s already applied to %s\n", name, tree.Component)
			continue
		}

		// Trees patched by hand or before the marker existed reverse cleanly.
		reverse := Command{Name: "patch", Args: []string{p, "-R", "--dry-run", "--batch", "-f", "-i", patch}, Dir: tree.Dir, Quiet: true}
		if err := a.Exec.Run(ctx, reverse); err == nil {
			step("%s is already applied to %s, skipping", name, tree.Component)
		} else {
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			forward := Command{Name: "patch", Args: []string{p, "--forward", "--batch", "-i", patch}, Dir: tree.Dir}
			if err := a.Exec.Run(ctx, forward); err != nil {
				if ctx.Err() != nil {
					return count, ctx.Err()
				}
				conflict := &PatchConflict{Patch: name, Dir: tree.Dir, Err: err}
				warnf("Warning: %v", conflict)
				conflicts = append(conflicts, conflict)
				continue
			}
			step("Applied %s to %s", name, tree.Component)
			count++
		}

		if err := appendPatchMarker(tree.Dir, name); err != nil {
			return count, fmt.Errorf("record patch %s: %w", name, err)
		}
		applied[name] = true
	}
	return count, errors.Join(conflicts...)
}
