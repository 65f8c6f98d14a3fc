// Package imaging provides the image operations used by the document pipeline.
//
// This package decodes supported raster formats into a canonical image with
// EXIF orientation applied, resizes and encodes variants, and extracts the
// metadata recorded on each page. All operations work with standard Go
// image.Image types and use a coordinate system where (0,0) is at the
// top-left corner.
//
// # Formats
//
// Sources may be JPEG, PNG, GIF, WEBP, BMP or TIFF. Outputs are limited to
// the closed set returned by SupportedFormats:
//   - JPEG: lossy, honors quality, alpha flattened onto white
//   - PNG: lossless, best compression
//   - WEBP: lossless, quality accepted but not used
//   - BMP: uncompressed, alpha flattened onto white
//   - TIFF: uncompressed
//
// # Resizing
//
// ResizeToBounds and MakeThumbnail never upscale. The scale factor is
// min(maxW/w, maxH/h, 1.0); the binding axis lands exactly on its bound and
// the other axis is floored to a minimum of one pixel. Resampling uses a
// Lanczos filter.
//
// # Determinism
//
// Encoding the same pixels with the same format and quality always produces
// the same bytes.
//
// # Thread Safety
//
// Operations are stateless and never modify their input, so a decoded image
// may be shared read-only between concurrent transforms.
//
// # Error Handling
//
// Functions return *errors.AppError values with DECODE_*, ENCODE_*,
// CONFIG_* or VALIDATION_* codes. Metadata extraction never fails; EXIF
// collection is best-effort.
package imaging
