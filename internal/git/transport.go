package git

import (
	"context"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
)

// ServeLocalRemotes routes file:// and plain-path remotes through go-git's
// in-process server, so local mirrors work without git-upload-pack and
// git-receive-pack on PATH.
func ServeLocalRemotes() {
	client.InstallProtocol("file", newLocalTransport(server.NewFilesystemLoader(osfs.New("/"))))
}

// localTransport wraps the in-process server. The server walks every "have"
// the client sends in the remote's storage and fails on commits it has never
// seen, which is exactly what a diverged local history sends. Upload
// sessions therefore drop haves the remote does not hold.
type localTransport struct {
	transport.Transport
	loader server.Loader
}

func newLocalTransport(loader server.Loader) *localTransport {
	return &localTransport{Transport: server.NewClient(loader), loader: loader}
}

func (t *localTransport) NewUploadPackSession(ep *transport.Endpoint, auth transport.AuthMethod) (transport.UploadPackSession, error) {
	sess, err := t.Transport.NewUploadPackSession(ep, auth)
	if err != nil {
		return nil, err
	}
	objects, err := t.loader.Load(ep)
	if err != nil {
		return nil, err
	}
	return &knownHavesSession{UploadPackSession: sess, objects: objects}, nil
}

type knownHavesSession struct {
	transport.UploadPackSession
	objects storer.EncodedObjectStorer
}

func (s *knownHavesSession) UploadPack(ctx context.Context, req *packp.UploadPackRequest) (*packp.UploadPackResponse, error) {
	req.Haves = knownHashes(s.objects, req.Haves)
	return s.UploadPackSession.UploadPack(ctx, req)
}

// knownHashes keeps the hashes present in objects, in order.
func knownHashes(objects storer.EncodedObjectStorer, hashes []plumbing.Hash) []plumbing.Hash {
	known := make([]plumbing.Hash, 0, len(hashes))
	for _, h := range hashes {
		if objects.HasEncodedObject(h) == nil {
			known = append(known, h)
		}
	}
	return known
}
