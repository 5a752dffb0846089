/*
Package anno holds the types and utilities shared by every other annotar package:
3d integer points and boxes in voxel space, voxel element types, the error taxonomy,
leveled logging and TOML configuration.

Coordinates are always given in the voxel space of mag (1,1,1) of the associated dataset
unless stated otherwise.
*/
package anno
