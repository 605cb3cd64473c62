package badgerstore

import "github.com/sirosfoundation/go-ebics/internal/storage"

var _ storage.Store = (*Store)(nil)
