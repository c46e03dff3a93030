package domain

import "errors"

// ErrProviderBusy indicates all nntp connections are in use
var ErrProviderBusy = errors.New("all providers busy")

// ErrArticleNotFound indicates every provider answered 430 for an article
var ErrArticleNotFound = errors.New("article not found in providers")

// ErrBufferLimit indicates the article body was cut at the provider buffer limit.
// Bytes written before the limit are valid.
var ErrBufferLimit = errors.New("nntp buffer limit reached")
