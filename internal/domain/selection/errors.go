package selection

import "errors"

var ErrOutOfStock = errors.New("item is out of stock")
