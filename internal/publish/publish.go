// Package publish builds the site into a git worktree checked out on the
// hosting branch and pushes it.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/logfields"
	"github.com/starford/nbhugo/internal/proc"
)

// Config names the git and hugo pieces of a publish.
type Config struct {
	Remote        string
	Branch        string
	Worktree      string
	CommitMessage string
	Hugo          string
}

// DefaultConfig publishes public/ to upstream/master.
func DefaultConfig() Config {
	return Config{
		Remote:        "upstream",
		Branch:        "master",
		Worktree:      "public",
		CommitMessage: "Publishing to upstream/master",
		Hugo:          "hugo",
	}
}

// BuildFunc renders the notebooks into the site before hugo runs.
type BuildFunc func(ctx context.Context) error

// Publisher runs the publish sequence for the site at Root.
type Publisher struct {
	root   string
	cfg    Config
	runner proc.Runner
	build  BuildFunc
	logger *slog.Logger
}

// New creates a Publisher for the git repository containing root.
func New(root string, cfg Config, runner proc.Runner, build BuildFunc, logger *slog.Logger) *Publisher {
	if runner == nil {
		runner = proc.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{root: root, cfg: cfg, runner: runner, build: build, logger: logger}
}

// Publish refuses to run on a dirty tree, renders the notebooks, then
// recreates the worktree from <remote>/<branch>, empties it, builds the site
// into it, commits and pushes. A failed render leaves the worktree alone. A commit with nothing to commit is not an error.
func (p *Publisher) Publish(ctx context.Context) error {
	start := time.Now()
	repo, err := git.PlainOpenWithOptions(p.root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return fmt.Errorf("publish: open repository: %w", err)
	}
	if err := CheckClean(repo); err != nil {
		return err
	}
	if _, err := repo.Remote(p.cfg.Remote); err != nil {
		return fmt.Errorf("publish: remote %q: %w", p.cfg.Remote, err)
	}

	if p.build != nil {
		p.logger.Info("publish: rendering notebooks")
		if err := p.build(ctx); err != nil {
			return fmt.Errorf("publish: render: %w", err)
		}
	}

	wt := filepath.Join(p.root, p.cfg.Worktree)
	if err := p.prepareWorktree(ctx, repo, wt); err != nil {
		return err
	}

	p.logger.Info("publish: generating site", logfields.Path(wt))
	if _, err := p.run(ctx, p.root, p.cfg.Hugo, "--destination", wt); err != nil {
		return err
	}

	if _, err := p.run(ctx, wt, "git", "add", "."); err != nil {
		return err
	}
	if _, err := p.run(ctx, wt, "git", "commit", "-m", p.cfg.CommitMessage); err != nil {
		p.logger.Warn("publish: commit failed, pushing existing head", logfields.Error(err))
	}
	p.logger.Info("publish: pushing", slog.String("remote", p.cfg.Remote), slog.String("branch", p.cfg.Branch))
	if _, err := p.run(ctx, wt, "git", "push", p.cfg.Remote, p.cfg.Branch); err != nil {
		return err
	}
	p.logger.Info("publish: done", logfields.Duration(time.Since(start)))
	return nil
}

func (p *Publisher) prepareWorktree(ctx context.Context, repo *git.Repository, wt string) error {
	p.logger.Info("publish: preparing worktree", logfields.Path(wt))
	if err := os.RemoveAll(wt); err != nil {
		return fmt.Errorf("publish: remove worktree: %w", err)
	}
	if _, err := p.run(ctx, p.root, "git", "worktree", "prune"); err != nil {
		return err
	}
	if gitDir, err := commonGitDir(repo); err == nil {
		_ = os.RemoveAll(filepath.Join(gitDir, "worktrees", filepath.Base(wt)))
	}
	if _, err := p.run(ctx, p.root, "git", "worktree", "add", "-B", p.cfg.Branch, wt, p.cfg.Remote+"/"+p.cfg.Branch); err != nil {
		return err
	}
	return clearDir(wt)
}

func (p *Publisher) run(ctx context.Context, dir string, argv ...string) ([]byte, error) {
	out, err := p.runner.Run(ctx, dir, argv...)
	if err != nil {
		return out, fmt.Errorf("publish: %w", err)
	}
	return out, nil
}

// CheckClean returns apperr.ErrDirtyWorktree when tracked files have
// uncommitted changes. Untracked files do not count.
func CheckClean(repo *git.Repository) error {
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("publish: worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("publish: status: %w", err)
	}
	for file, s := range status {
		if s.Worktree == git.Untracked && s.Staging == git.Untracked {
			continue
		}
		if s.Worktree != git.Unmodified || s.Staging != git.Unmodified {
			return fmt.Errorf("%w: commit pending changes (%s)", apperr.ErrDirtyWorktree, file)
		}
	}
	return nil
}

// clearDir empties dir except for the .git link of a worktree, creating dir
// when it does not exist.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return fmt.Errorf("publish: read worktree: %w", err)
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("publish: clear worktree: %w", err)
		}
	}
	return nil
}

func commonGitDir(repo *git.Repository) (string, error) {
	w, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(w.Filesystem.Root(), ".git")
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("publish: no .git directory at %s", dir)
	}
	return dir, nil
}
