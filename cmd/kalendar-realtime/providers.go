package main

// Push provider blank imports. Each import activates a self-registering
// provider; add new providers here as they are implemented.

import (
	_ "github.com/lucylow/kale-ndar-sub000/internal/adapter/logpush"
)
