/*
Package blockkv implements an embedded key-value store persisted on a
single fixed-size disk image. The image is carved into two named files
by a minimal block layer; mutations append to a redo log held in one of
them and are replayed at startup. Clean shutdown and corruption
recovery compact the log into a fresh snapshot with an atomic rename.
*/
package blockkv
