package moonraker

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360/moonraker/errors"
)

// SelfEntry is the synthetic entry name a folder uses for its own metadata.
const SelfEntry = "."

// excludedFolders are folder names skipped during tree traversal.
var excludedFolders = map[string]struct{}{
	".thumbs": {},
}

// directoryListing is the response of server.files.get_directory.
type directoryListing struct {
	Dirs []struct {
		Dirname     string  `json:"dirname"`
		Modified    float64 `json:"modified"`
		Size        int64   `json:"size"`
		Permissions string  `json:"permissions"`
	} `json:"dirs"`
	Files []struct {
		Filename    string  `json:"filename"`
		Modified    float64 `json:"modified"`
		Size        int64   `json:"size"`
		Permissions string  `json:"permissions"`
	} `json:"files"`
}

// Tree returns a snapshot of the cached file tree for a storage root.
func (c *Client) Tree(root string) Tree {
	c.treeMu.RLock()
	defer c.treeMu.RUnlock()

	tree, ok := c.trees[root]
	if !ok {
		return nil
	}
	snapshot := make(Tree, len(tree))
	for folder, entries := range tree {
		folderCopy := make(TreeFolder, len(entries))
		for name, entry := range entries {
			folderCopy[name] = entry
		}
		snapshot[folder] = folderCopy
	}
	return snapshot
}

// treeBuilder collects folder listings from concurrent tree walk branches.
type treeBuilder struct {
	mu   sync.Mutex
	tree Tree
}

func (b *treeBuilder) set(folder string, entries TreeFolder) {
	b.mu.Lock()
	b.tree[folder] = entries
	b.mu.Unlock()
}

// RefreshTree rebuilds the full file tree of a storage root. Directory
// listings are fetched in parallel, one RPC per folder; the refresh fails if
// any folder fetch fails, after all in-flight fetches have finished.
func (c *Client) RefreshTree(ctx context.Context, root string) error {
	if _, ok := c.roots[root]; !ok {
		return errors.WrapInvalid(errors.ErrUnsupportedStorage, "Client", "RefreshTree", "root check")
	}

	builder := &treeBuilder{tree: make(Tree)}
	if err := c.fetchFolder(ctx, root, "", nil, builder, true); err != nil {
		return err
	}

	c.treeMu.Lock()
	c.trees[root] = builder.tree
	c.treeMu.Unlock()

	if c.metrics != nil {
		c.metrics.treeRefreshes.WithLabelValues(root).Inc()
	}
	c.listener.OnFilesRefreshed(root)
	return nil
}

// refreshFolder refetches a single folder of a cached tree without touching
// its siblings or children. Used for targeted updates on filelist change
// notifications.
func (c *Client) refreshFolder(ctx context.Context, root, folder string) error {
	builder := &treeBuilder{tree: make(Tree)}
	if err := c.fetchFolder(ctx, root, folder, nil, builder, false); err != nil {
		return err
	}

	c.treeMu.Lock()
	cached, ok := c.trees[root]
	if !ok {
		cached = make(Tree)
		c.trees[root] = cached
	}
	for p, entries := range builder.tree {
		// the self entry of the cached folder is preserved, a single
		// folder fetch cannot see the parent's metadata for it
		if existing, ok := cached[p]; ok {
			if self, ok := existing[SelfEntry]; ok {
				entries[SelfEntry] = self
			}
		}
		cached[p] = entries
	}
	c.treeMu.Unlock()

	c.listener.OnFilesRefreshed(root)
	return nil
}

// fetchFolder lists one folder and stores its entries into the builder under
// the folder's path. With recurse set, subfolders are fetched concurrently;
// the walk joins on the slowest branch and surfaces the first error.
func (c *Client) fetchFolder(ctx context.Context, root, folder string, self *TreeEntry, builder *treeBuilder, recurse bool) error {
	params := map[string]any{
		"path":     path.Join(root, folder),
		"extended": false,
	}

	var listing directoryListing
	if err := c.rpc.Invoke(ctx, "server.files.get_directory", params, &listing); err != nil {
		return errors.WrapTransient(err, "Client", "fetchFolder", "directory listing")
	}

	entries := make(TreeFolder, len(listing.Dirs)+len(listing.Files)+1)
	if self != nil {
		entries[SelfEntry] = *self
	}

	type childFolder struct {
		folder string
		self   TreeEntry
	}
	var children []childFolder

	for _, dir := range listing.Dirs {
		if _, excluded := excludedFolders[dir.Dirname]; excluded {
			continue
		}
		entry := TreeEntry{
			Name:        dir.Dirname,
			Size:        dir.Size,
			Modified:    dir.Modified,
			Permissions: dir.Permissions,
			IsDir:       true,
		}
		entries[dir.Dirname] = entry
		children = append(children, childFolder{
			folder: joinFolder(folder, dir.Dirname),
			self:   entry,
		})
	}

	for _, file := range listing.Files {
		entries[file.Filename] = TreeEntry{
			Name:        file.Filename,
			Size:        file.Size,
			Modified:    file.Modified,
			Permissions: file.Permissions,
		}
	}

	builder.set(folder, entries)

	if !recurse || len(children) == 0 {
		return nil
	}

	var group errgroup.Group
	for _, child := range children {
		child := child
		group.Go(func() error {
			self := child.self
			return c.fetchFolder(ctx, root, child.folder, &self, builder, true)
		})
	}
	return group.Wait()
}

func joinFolder(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// filelistItem is one changed item of a notify_filelist_changed entry.
type filelistItem struct {
	Root string `json:"root"`
	Path string `json:"path"`
}

// filelistChange is one entry of notify_filelist_changed params.
type filelistChange struct {
	Action     string        `json:"action"`
	Item       filelistItem  `json:"item"`
	SourceItem *filelistItem `json:"source_item"`
}

// onFilelistChanged runs on the receipt goroutine and schedules targeted
// folder refreshes for the affected paths. Only monitored roots are handled.
func (c *Client) onFilelistChanged(_ string, params json.RawMessage) {
	var changes []filelistChange
	if err := json.Unmarshal(params, &changes); err != nil {
		c.logger.Warn("malformed filelist change params", "error", err)
		return
	}

	type target struct {
		root   string
		folder string
	}
	seen := make(map[target]struct{})
	var targets []target

	add := func(root, folder string) {
		t := target{root: root, folder: folder}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}

	for _, change := range changes {
		for _, item := range []*filelistItem{&change.Item, change.SourceItem} {
			if item == nil || item.Root == "" {
				continue
			}
			if _, monitored := c.roots[item.Root]; !monitored {
				continue
			}
			add(item.Root, refreshFolderFor(change.Action, item.Path))
		}
	}

	for _, t := range targets {
		t := t
		go func() {
			ctx, cancel := c.callContext()
			defer cancel()
			if err := c.refreshFolder(ctx, t.root, t.folder); err != nil {
				c.logger.Error("error while refreshing folder",
					"root", t.root, "folder", t.folder, "error", err)
			}
		}()
	}
}

// refreshFolderFor maps a change notification onto the folder to refetch:
// file-level actions refresh the containing folder, folder-level actions
// refresh the named path itself.
func refreshFolderFor(action, itemPath string) string {
	if strings.HasSuffix(action, "_file") {
		if idx := strings.LastIndex(itemPath, "/"); idx >= 0 {
			return itemPath[:idx]
		}
		return ""
	}
	return itemPath
}
