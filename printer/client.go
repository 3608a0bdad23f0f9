package printer

import (
	"context"
	"io"

	"github.com/c360/moonraker"
)

// ProtocolClient is the slice of the Moonraker client the reconciler needs.
// All command methods block until the server acknowledged the call or the
// context ends.
type ProtocolClient interface {
	Connect(ctx context.Context) error
	Close() error
	KlipperState() moonraker.KlipperState

	SendGcodeCommands(commands ...string) error
	StartPrint(ctx context.Context, path string) error
	PausePrint(ctx context.Context) error
	ResumePrint(ctx context.Context) error
	CancelPrint(ctx context.Context) error
	QueryPrintStatus(ctx context.Context) (moonraker.PrintStats, moonraker.SDCardStats, error)

	DeleteFile(ctx context.Context, path, root string) error
	CreateFolder(ctx context.Context, path, root string) error
	DeleteFolder(ctx context.Context, path, root string, force bool) error
	MovePath(ctx context.Context, srcPath, dstPath, srcRoot, dstRoot string) error
	CopyPath(ctx context.Context, srcPath, dstPath, srcRoot, dstRoot string) error
	UploadFile(ctx context.Context, source io.Reader, path, root string) <-chan error
	DownloadFile(ctx context.Context, path, root string) (io.ReadCloser, error)
	Tree(root string) moonraker.Tree
	RefreshTree(ctx context.Context, root string) error
	Macros() map[string]moonraker.MacroParams
}

// clientAdapter narrows *moonraker.Client to the ProtocolClient surface,
// turning its asynchronous call handles into blocking waits.
type clientAdapter struct {
	*moonraker.Client
}

func (a clientAdapter) SendGcodeCommands(commands ...string) error {
	_, err := a.Client.SendGcodeCommands(commands...)
	return err
}

func (a clientAdapter) StartPrint(ctx context.Context, path string) error {
	call, err := a.Client.StartPrint(path)
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}

func (a clientAdapter) PausePrint(ctx context.Context) error {
	call, err := a.Client.PausePrint()
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}

func (a clientAdapter) ResumePrint(ctx context.Context) error {
	call, err := a.Client.ResumePrint()
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}

func (a clientAdapter) CancelPrint(ctx context.Context) error {
	call, err := a.Client.CancelPrint()
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}

func (a clientAdapter) DeleteFile(ctx context.Context, path, root string) error {
	call, err := a.Client.DeleteFile(path, root)
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}

func (a clientAdapter) CreateFolder(ctx context.Context, path, root string) error {
	call, err := a.Client.CreateFolder(path, root)
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}

func (a clientAdapter) DeleteFolder(ctx context.Context, path, root string, force bool) error {
	call, err := a.Client.DeleteFolder(path, root, force)
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}

func (a clientAdapter) MovePath(ctx context.Context, srcPath, dstPath, srcRoot, dstRoot string) error {
	call, err := a.Client.MovePath(srcPath, dstPath, srcRoot, dstRoot)
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}

func (a clientAdapter) CopyPath(ctx context.Context, srcPath, dstPath, srcRoot, dstRoot string) error {
	call, err := a.Client.CopyPath(srcPath, dstPath, srcRoot, dstRoot)
	if err != nil {
		return err
	}
	return call.Decode(ctx, nil)
}
