package blockstore

import (
	"testing"

	"github.com/ehrlich-b/kestrel/comms/kchannel"
	kregistry "github.com/ehrlich-b/kestrel/registry"
)

func newCmdChannel() *kchannel.KChannel[kregistry.Message[Request, Response]] {
	return kchannel.New[kregistry.Message[Request, Response]](1, nil)
}

// The contract is the deliverable here: a driver type with a stable UUID
// and the top-level message shapes.
func TestServiceIsARegisteredDriver(t *testing.T) {
	var _ kregistry.Driver[Request, Response] = Service{}

	if (Service{}).UUID() != kregistry.BlockStoreUUID {
		t.Error("Service UUID does not match the well-known block store UUID")
	}
}

func TestServiceRegistersUnderContract(t *testing.T) {
	r := kregistry.New(2)
	ch := newCmdChannel()
	if err := kregistry.Register[Service](r, ch, kregistry.UserShareable); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := kregistry.Get[Service, Request, Response](r); err != nil {
		t.Errorf("Get: %v", err)
	}
}
